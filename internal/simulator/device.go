// Package simulator emulates a flow meter on the device side of the
// protocol. It backs cmd/devsim and the listener tests.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// Leading marker and head byte the simulated meter puts in every reply
const (
	ReplyLeading uint16 = 0x7E7E
	ReplyHead    byte   = 0x10
)

// Device answers read requests the way a meter does
type Device struct {
	Registration hmframe.Registration

	// Reading produces the record returned for a history request. The
	// address is the requested history address.
	Reading func(addr uint32) hmframe.Telemetry

	mu       sync.Mutex
	requests []uint32
}

// NewDevice creates a device with a deterministic reading generator
func NewDevice(reg hmframe.Registration) *Device {
	return &Device{
		Registration: reg,
		Reading:      DefaultReading,
	}
}

// DefaultReading derives plausible values from the history address so every
// minute slot returns a distinct record.
func DefaultReading(addr uint32) hmframe.Telemetry {
	slot := float64(addr / 32 % 1440)
	return hmframe.Telemetry{
		TotalFlow:    1000 + slot*0.5,
		Flow:         12.5,
		Temperature:  20 + float64(int(slot)%10)*0.25,
		Pressure:     101.25,
		DiffPressure: 3.125,
		Density:      0.75,
	}
}

// Answer builds the reply for one request frame
func (d *Device) Answer(req []byte) ([]byte, error) {
	if err := hmframe.ValidateRequest(req); err != nil {
		return nil, err
	}

	addr := hmframe.RequestAddr(req)
	length := req[8]

	d.mu.Lock()
	d.requests = append(d.requests, addr)
	d.mu.Unlock()

	var payload []byte
	if length == 32 && addr != mustBank(hmframe.SpecificRealtimeData) {
		t := d.Reading(addr)
		p, err := hmframe.EncodeHistoryPayload(&t)
		if err != nil {
			return nil, err
		}
		payload = p
	} else {
		payload = make([]byte, length)
	}

	return hmframe.EncodeResponse(ReplyLeading, ReplyHead, hmframe.OriginAddr, req[2], hmframe.CmdRead, payload)
}

// Requests returns the target address of every request answered so far
func (d *Device) Requests() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.requests...)
}

// Serve sends the registration on conn and answers requests until ctx is
// done or the peer goes away.
func (d *Device) Serve(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reg, err := d.Registration.Encode()
	if err != nil {
		return err
	}
	if _, err := conn.Write(reg); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}

	log.Info().
		Str("port_id", d.Registration.PortID()).
		Str("server", conn.RemoteAddr().String()).
		Msg("Simulated device registered")

	req := make([]byte, hmframe.RequestSize)
	for {
		if _, err := io.ReadFull(conn, req); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		resp, err := d.Answer(req)
		if err != nil {
			return err
		}
		if _, err := conn.Write(resp); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}

		log.Debug().
			Uint32("addr", hmframe.RequestAddr(req)).
			Int("size", len(resp)).
			Msg("Answered request")
	}
}

// Dial connects to addr and serves until ctx is done
func (d *Device) Dial(ctx context.Context, addr string) error {
	var dialer net.Dialer
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := dialer.DialContext(dctx, "tcp", addr)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	return d.Serve(ctx, conn)
}

func mustBank(t hmframe.DataType) uint32 {
	addr, err := t.BankAddr()
	if err != nil {
		panic(err)
	}
	return addr
}
