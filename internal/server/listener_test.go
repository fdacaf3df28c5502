package server

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/config"
	"github.com/hmflow/gprs-puller/internal/monitor"
	"github.com/hmflow/gprs-puller/internal/session"
	"github.com/hmflow/gprs-puller/internal/simulator"
	"github.com/hmflow/gprs-puller/internal/storage"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

type harness struct {
	listener *Listener
	store    *storage.MemoryStore
	cancel   context.CancelFunc
	done     chan error
	stopOnce sync.Once
}

func startListener(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.RegistrationTimeout = time.Second
	cfg.Server.ReadTimeout = 2 * time.Second
	cfg.Server.WriteTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	store := storage.NewMemoryStore()
	l, err := NewListener(cfg, store, session.NewRegistry(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{listener: l, store: store, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- l.Start(ctx) }()

	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		<-h.done
	})
}

func (h *harness) addr() string {
	return h.listener.Addr().String()
}

func runDevice(t *testing.T, addr string, reg hmframe.Registration) (*simulator.Device, context.CancelFunc, chan error) {
	t.Helper()

	d := simulator.NewDevice(reg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Dial(ctx, addr) }()
	t.Cleanup(cancel)

	return d, cancel, done
}

func TestRegistrationAndFirstPoll(t *testing.T) {
	h := startListener(t, nil)
	reg := hmframe.Registration{DeviceAddr: 18, Phone: "13800000001", IP: net.IPv4(10, 0, 0, 7)}
	d, _, _ := runDevice(t, h.addr(), reg)

	require.Eventually(t, func() bool {
		_, ok := h.listener.Registry().Get(reg.PortID())
		return ok && len(d.Requests()) > 0
	}, 3*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	device, err := h.store.GetDeviceByPortID(ctx, reg.PortID())
	require.NoError(t, err)
	assert.Equal(t, "13800000001", device.Phone)
	assert.Equal(t, "10.0.0.7", device.IPAddress)

	require.Eventually(t, func() bool {
		_, total, err := h.store.ListTelemetry(ctx, device.ID, storage.TelemetryFilters{}, 10, 0)
		return err == nil && total == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAddressOverride(t *testing.T) {
	h := startListener(t, func(cfg *config.Config) {
		cfg.Polling.AddressOverride = 18
	})
	reg := hmframe.Registration{DeviceAddr: 4000, Phone: "13800000002"}
	runDevice(t, h.addr(), reg)

	require.Eventually(t, func() bool {
		s, ok := h.listener.Registry().Get(reg.PortID())
		return ok && s.Info().PollAddr == 18
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAddressOutOfRangeRejected(t *testing.T) {
	h := startListener(t, nil)
	before := testutil.ToFloat64(monitor.RegistrationFailures)

	reg := hmframe.Registration{DeviceAddr: 4000, Phone: "13800000003"}
	_, _, done := runDevice(t, h.addr(), reg)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("device connection was not closed")
	}

	assert.Equal(t, 0, h.listener.Registry().Len())
	assert.GreaterOrEqual(t, testutil.ToFloat64(monitor.RegistrationFailures)-before, 1.0)
}

func TestInvalidRegistrationClosesConnection(t *testing.T) {
	h := startListener(t, nil)

	conn, err := net.Dial("tcp", h.addr())
	require.NoError(t, err)
	defer conn.Close()

	// blank phone number
	_, err = conn.Write(make([]byte, hmframe.RegistrationSize))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, h.listener.Registry().Len())
}

func TestRegistrationTimeout(t *testing.T) {
	h := startListener(t, func(cfg *config.Config) {
		cfg.Server.RegistrationTimeout = 100 * time.Millisecond
	})

	conn, err := net.Dial("tcp", h.addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0, 0, 0, 18, '1', '3'})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReconnectReplacesSession(t *testing.T) {
	h := startListener(t, nil)
	reg := hmframe.Registration{DeviceAddr: 18, Phone: "13800000004"}

	_, _, firstDone := runDevice(t, h.addr(), reg)

	var first *session.Session
	require.Eventually(t, func() bool {
		s, ok := h.listener.Registry().Get(reg.PortID())
		first = s
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	runDevice(t, h.addr(), reg)

	require.Eventually(t, func() bool {
		s, ok := h.listener.Registry().Get(reg.PortID())
		return ok && s != first
	}, 3*time.Second, 10*time.Millisecond)

	select {
	case <-first.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("stale session was not closed")
	}
	assert.Equal(t, session.ReasonReplaced, first.Reason())
	assert.Equal(t, 1, h.listener.Registry().Len())

	device, err := h.store.GetDeviceByPortID(context.Background(), reg.PortID())
	require.NoError(t, err)
	assert.True(t, device.Online, "replacement keeps the device online")

	select {
	case <-firstDone:
	case <-time.After(3 * time.Second):
		t.Fatal("stale device connection was not closed")
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	h := startListener(t, nil)
	reg := hmframe.Registration{DeviceAddr: 18, Phone: "13800000005"}
	_, _, deviceDone := runDevice(t, h.addr(), reg)

	var s *session.Session
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = h.listener.Registry().Get(reg.PortID())
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	h.stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("session still open after shutdown")
	}
	assert.Equal(t, session.ReasonShutdown, s.Reason())
	assert.Equal(t, 0, h.listener.Registry().Len())

	select {
	case <-deviceDone:
	case <-time.After(3 * time.Second):
		t.Fatal("device connection still open after shutdown")
	}

	device, err := h.store.GetDeviceByPortID(context.Background(), reg.PortID())
	require.NoError(t, err)
	assert.False(t, device.Online)
}
