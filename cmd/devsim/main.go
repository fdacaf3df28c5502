// Command devsim dials a puller and behaves like one or more flow meters.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/simulator"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

func main() {
	var (
		addr       string
		phone      string
		count      int
		deviceAddr uint
		ip         string
		reconnect  time.Duration
		debug      bool
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:8777", "Puller device listener address")
	flag.StringVar(&phone, "phone", "13800000000", "Phone number of the first device; later devices count up")
	flag.IntVar(&count, "count", 1, "Number of simulated devices")
	flag.UintVar(&deviceAddr, "device-addr", 18, "Logical address reported at registration")
	flag.StringVar(&ip, "ip", "10.0.0.1", "IP address reported at registration")
	flag.DurationVar(&reconnect, "reconnect", 5*time.Second, "Delay before redialing after a disconnect, 0 to exit")
	flag.BoolVar(&debug, "debug", false, "Log every request")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var base uint64
	if _, err := fmt.Sscan(phone, &base); err != nil {
		log.Fatal().Err(err).Str("phone", phone).Msg("Phone must be numeric")
	}

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		d := simulator.NewDevice(hmframe.Registration{
			DeviceAddr: uint32(deviceAddr),
			Phone:      fmt.Sprintf("%0*d", len(phone), base+uint64(i)),
			IP:         net.ParseIP(ip),
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx, d, addr, reconnect)
		}()
	}

	wg.Wait()
	log.Info().Msg("Simulator stopped")
}

func run(ctx context.Context, d *simulator.Device, addr string, reconnect time.Duration) {
	for {
		err := d.Dial(ctx, addr)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("port_id", d.Registration.PortID()).Msg("Disconnected")

		if reconnect <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnect):
		}
	}
}
