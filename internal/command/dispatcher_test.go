package command

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/session"
	"github.com/hmflow/gprs-puller/internal/simulator"
	"github.com/hmflow/gprs-puller/internal/storage"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

func newIdleSession(t *testing.T, registry *session.Registry, phone string) *session.Session {
	t.Helper()

	server, device := net.Pipe()
	t.Cleanup(func() { device.Close() })

	s := session.New(context.Background(), session.Config{
		Conn:         server,
		DeviceID:     uuid.New(),
		Registration: &hmframe.Registration{DeviceAddr: 18, Phone: phone},
		Addr:         18,
		Registry:     registry,
		Store:        storage.NewMemoryStore(),
	})
	registry.Insert(s)
	t.Cleanup(func() { s.Close(session.ReasonClosed) })

	return s
}

func TestDispatcherSubmit(t *testing.T) {
	registry := session.NewRegistry()
	s := newIdleSession(t, registry, "13800000001")
	d := NewDispatcher(NewQueue(0), registry)

	err := d.Submit(&models.Command{PortID: s.PortID(), DataType: hmframe.ClockData})
	require.NoError(t, err)
	assert.Len(t, d.Queue().Pending(s.PortID()), 1)

	err = d.Submit(&models.Command{PortID: "GPRS00000000000", DataType: hmframe.ClockData})
	assert.ErrorIs(t, err, ErrNoSession)
}

// answerRequests replies to every request on conn until it is closed
func answerRequests(conn net.Conn, dev *simulator.Device) {
	defer conn.Close()
	for {
		req := make([]byte, hmframe.RequestSize)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		resp, err := dev.Answer(req)
		if err != nil {
			return
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func TestDispatcherWakesOnlyCommandMode(t *testing.T) {
	registry := session.NewRegistry()
	queue := NewQueue(0)
	d := NewDispatcher(queue, registry)

	reg := hmframe.Registration{DeviceAddr: 18, Phone: "13800000003"}
	dev := simulator.NewDevice(reg)
	server, device := net.Pipe()
	go answerRequests(device, dev)

	s := session.New(context.Background(), session.Config{
		Conn:         server,
		DeviceID:     uuid.New(),
		Registration: &reg,
		Addr:         18,
		Registry:     registry,
		Store:        storage.NewMemoryStore(),
		Commands:     queue,
		Options: session.Options{
			KeepaliveDelay:   time.Hour,
			CommandIdleDelay: time.Hour,
			ReadTimeout:      2 * time.Second,
			WriteTimeout:     2 * time.Second,
			Now:              func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) },
		},
	})
	registry.Insert(s)
	go s.Run()
	t.Cleanup(func() { s.Close(session.ReasonClosed) })

	requests := func() int { return len(dev.Requests()) }
	require.Eventually(t, func() bool { return requests() == 1 }, 3*time.Second, 10*time.Millisecond)

	// realtime mode keeps its schedule
	require.NoError(t, d.Submit(&models.Command{PortID: s.PortID(), DataType: hmframe.ClockData}))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, requests())
	assert.Len(t, queue.Pending(s.PortID()), 1)

	// switching to command mode drains the queued command
	require.NoError(t, d.SetMode(s.PortID(), models.ModeCommand, time.Time{}))
	require.Eventually(t, func() bool { return requests() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, queue.Pending(s.PortID()))

	require.NoError(t, d.Submit(&models.Command{PortID: s.PortID(), DataType: hmframe.FloatData}))
	require.Eventually(t, func() bool { return requests() == 3 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint32(8), dev.Requests()[2])
}

func TestDispatcherSetMode(t *testing.T) {
	registry := session.NewRegistry()
	s := newIdleSession(t, registry, "13800000002")
	d := NewDispatcher(NewQueue(0), registry)

	require.NoError(t, d.SetMode(s.PortID(), models.ModeCommand, time.Time{}))
	assert.Equal(t, models.ModeCommand, s.Mode())

	err := d.SetMode(s.PortID(), models.ModeHistory, time.Time{})
	assert.ErrorIs(t, err, session.ErrInvalidMode)

	err = d.SetMode("GPRSnobody", models.ModeRealtime, time.Time{})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestPortFromSubject(t *testing.T) {
	s := &NATSSubscriber{prefix: "puller"}

	tests := []struct {
		subject string
		want    string
		ok      bool
	}{
		{"puller.device.GPRS13800000001.command", "GPRS13800000001", true},
		{"puller.device.GPRS13800000001.mode", "GPRS13800000001", true},
		{"other.device.GPRS1.command", "", false},
		{"puller.device.command", "", false},
	}

	for _, tt := range tests {
		got, ok := s.portFromSubject(tt.subject)
		assert.Equal(t, tt.ok, ok, tt.subject)
		assert.Equal(t, tt.want, got, tt.subject)
	}
}
