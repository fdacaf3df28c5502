package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/config"
	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/monitor"
	"github.com/hmflow/gprs-puller/internal/session"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// ErrAddressRange is returned when a device reports a logical address that
// does not fit in a request frame and no override is configured.
var ErrAddressRange = errors.New("server: logical address out of range")

// DeviceStore is what the listener needs from storage
type DeviceStore interface {
	session.DeviceStore
	RegisterDevice(ctx context.Context, logicalAddr uint32, phone, ip, remoteAddr string) (uuid.UUID, error)
}

type eventRecorder interface {
	CreateEventLog(ctx context.Context, event *models.EventLog) error
}

// Listener accepts device connections, registers them and runs one session
// per device.
type Listener struct {
	cfg     config.ServerConfig
	polling config.PollingConfig

	ln        net.Listener
	store     DeviceStore
	registry  *session.Registry
	commands  session.CommandSource
	publisher session.Publisher

	// now overrides the session clock in tests
	now func() time.Time

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewListener binds the device port
func NewListener(cfg *config.Config, store DeviceStore, registry *session.Registry,
	commands session.CommandSource, publisher session.Publisher) (*Listener, error) {
	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}

	return &Listener{
		cfg:       cfg.Server,
		polling:   cfg.Polling,
		ln:        ln,
		store:     store,
		registry:  registry,
		commands:  commands,
		publisher: publisher,
	}, nil
}

// Addr returns the bound address
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Registry returns the live session registry
func (l *Listener) Registry() *session.Registry {
	return l.registry
}

// Start accepts connections until ctx is done, then shuts every session down
// and waits for them.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().Str("addr", l.ln.Addr().String()).Msg("Device listener started")

	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.Shutdown()
				return ctx.Err()
			}

			log.Error().Err(err).Msg("Accept failed")
			select {
			case <-ctx.Done():
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		monitor.TotalConnections.Inc()

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(ctx, conn)
		}()
	}
}

// Shutdown stops accepting, closes every session and waits for all
// connection goroutines.
func (l *Listener) Shutdown() {
	l.stopOnce.Do(func() {
		l.ln.Close()
		l.registry.CloseAll(session.ReasonShutdown)
		l.wg.Wait()

		log.Info().Msg("Device listener stopped")
	})
}

// handleConn reads the registration and runs the session until it closes
func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()

	if tc, ok := conn.(*net.TCPConn); ok && l.cfg.KeepAlive > 0 {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(l.cfg.KeepAlive)
	}

	reg, err := l.readRegistration(conn)
	if err != nil {
		monitor.RegistrationFailures.Inc()
		log.Warn().Err(err).Str("remote", remote).Msg("Registration failed")
		l.recordFailure(ctx, remote, err)
		conn.Close()
		return
	}

	addr, err := l.pollAddr(reg)
	if err != nil {
		monitor.RegistrationFailures.Inc()
		log.Warn().Err(err).Str("remote", remote).Str("port_id", reg.PortID()).Msg("Registration rejected")
		l.recordFailure(ctx, remote, err)
		conn.Close()
		return
	}

	ip := ""
	if reg.IP != nil {
		ip = reg.IP.String()
	}

	deviceID, err := l.store.RegisterDevice(ctx, reg.DeviceAddr, reg.Phone, ip, remote)
	if err != nil {
		monitor.RegistrationFailures.Inc()
		monitor.StoreErrors.Inc()
		log.Error().Err(err).Str("remote", remote).Str("port_id", reg.PortID()).Msg("Failed to register device")
		conn.Close()
		return
	}

	s := session.New(ctx, session.Config{
		Conn:         conn,
		DeviceID:     deviceID,
		Registration: reg,
		Addr:         addr,
		Registry:     l.registry,
		Store:        l.store,
		Commands:     l.commands,
		Publisher:    l.publisher,
		Options: session.Options{
			HistoryInterval:  l.polling.HistoryInterval,
			KeepaliveDelay:   l.polling.KeepaliveDelay,
			CommandIdleDelay: l.polling.CommandIdleDelay,
			ReadTimeout:      l.cfg.ReadTimeout,
			WriteTimeout:     l.cfg.WriteTimeout,
			Now:              l.now,
		},
	})

	if old := l.registry.Insert(s); old != nil {
		log.Info().Str("port_id", s.PortID()).Msg("Replaced stale session")
	}
	if ctx.Err() != nil {
		s.Close(session.ReasonShutdown)
		return
	}

	s.Run()
}

// readRegistration reads exactly one registration message under the
// registration timeout.
func (l *Listener) readRegistration(conn net.Conn) (*hmframe.Registration, error) {
	if l.cfg.RegistrationTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(l.cfg.RegistrationTimeout))
	}

	buf := make([]byte, hmframe.RegistrationSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("%w: read registration: %w", session.ErrConnection, err)
	}

	// Session I/O sets its own deadlines
	conn.SetReadDeadline(time.Time{})

	return hmframe.ParseRegistration(buf)
}

// pollAddr picks the logical address put in request frames
func (l *Listener) pollAddr(reg *hmframe.Registration) (byte, error) {
	if l.polling.AddressOverride != 0 {
		return byte(l.polling.AddressOverride), nil
	}
	if reg.DeviceAddr > 0xFF {
		return 0, fmt.Errorf("%w: %d", ErrAddressRange, reg.DeviceAddr)
	}
	return byte(reg.DeviceAddr), nil
}

func (l *Listener) recordFailure(ctx context.Context, remote string, cause error) {
	er, ok := l.store.(eventRecorder)
	if !ok {
		return
	}

	event := &models.EventLog{
		Type:        models.EventTypeRegister,
		Level:       models.EventLevelWarning,
		Description: "Registration failed",
		Details: models.Variables{
			"remoteAddr": remote,
			"error":      cause.Error(),
		},
	}
	if err := er.CreateEventLog(ctx, event); err != nil {
		log.Warn().Err(err).Msg("Failed to record registration failure")
	}
}
