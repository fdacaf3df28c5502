package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

func newIdleSession(t *testing.T, phone string, store *fakeStore, registry *Registry) *Session {
	t.Helper()

	server, device := net.Pipe()
	t.Cleanup(func() { device.Close() })

	return New(context.Background(), Config{
		Conn:         server,
		DeviceID:     uuid.New(),
		Registration: &hmframe.Registration{DeviceAddr: 1, Phone: phone},
		Addr:         1,
		Registry:     registry,
		Store:        store,
	})
}

func TestRegistryInsertReplaces(t *testing.T) {
	registry := NewRegistry()
	store := &fakeStore{}

	first := newIdleSession(t, "13800000001", store, registry)
	assert.Nil(t, registry.Insert(first))

	second := newIdleSession(t, "13800000001", store, registry)
	assert.Same(t, first, registry.Insert(second))

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced session not closed")
	}
	assert.Equal(t, ReasonReplaced, first.Reason())

	got, ok := registry.Get("GPRS13800000001")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, 0, store.offlineCount(), "the new session owns the device state")

	second.Close(ReasonClosed)
	assert.Equal(t, 1, store.offlineCount())
}

func TestCloseDiscardsPendingCommands(t *testing.T) {
	registry := NewRegistry()
	store := &fakeStore{}
	cmds := &fakeCommands{cmds: []*models.Command{{ID: uuid.New(), DataType: hmframe.ClockData}}}

	first := newIdleSession(t, "13800000006", store, registry)
	first.commands = cmds
	registry.Insert(first)

	second := newIdleSession(t, "13800000006", store, registry)
	second.commands = cmds
	registry.Insert(second)
	<-first.Done()
	assert.Len(t, cmds.pending(), 1, "kept for the replacing session")

	second.Close(ReasonConnection)
	assert.Empty(t, cmds.pending())
}

func TestRegistryRemoveComparesOwner(t *testing.T) {
	registry := NewRegistry()
	store := &fakeStore{}

	a := newIdleSession(t, "13800000002", store, registry)
	b := newIdleSession(t, "13800000002", store, nil)
	registry.Insert(a)

	assert.False(t, registry.Remove(a.PortID(), b))
	assert.Equal(t, 1, registry.Len())
	assert.True(t, registry.Remove(a.PortID(), a))
	assert.Equal(t, 0, registry.Len())

	b.Close(ReasonClosed)
	a.Close(ReasonClosed)
}

func TestRegistryListAndCloseAll(t *testing.T) {
	registry := NewRegistry()
	store := &fakeStore{}

	for _, phone := range []string{"13800000009", "13800000003", "13800000005"} {
		registry.Insert(newIdleSession(t, phone, store, registry))
	}

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "GPRS13800000003", list[0].PortID())
	assert.Equal(t, "GPRS13800000009", list[2].PortID())

	registry.CloseAll(ReasonShutdown)
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 3, store.offlineCount())
	for _, s := range list {
		assert.Equal(t, ReasonShutdown, s.Reason())
	}
}
