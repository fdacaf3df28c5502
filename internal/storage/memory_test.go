package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/models"
)

func TestMemoryStoreRegisterDevice(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.RegisterDevice(ctx, 18, "1234567890A", "10.0.0.7", "192.0.2.1:40000")
	require.NoError(t, err)

	device, err := s.GetDeviceByPortID(ctx, "GPRS1234567890A")
	require.NoError(t, err)
	assert.Equal(t, id, device.ID)
	assert.Equal(t, uint32(18), device.LogicalAddr)
	assert.True(t, device.Online)
	assert.Equal(t, models.ModeRealtime, device.CollectMode)

	// re-registration keeps the id
	require.NoError(t, s.SetOnline(ctx, id, false))
	again, err := s.RegisterDevice(ctx, 19, "1234567890A", "10.0.0.8", "192.0.2.1:40001")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	device, err = s.GetDevice(ctx, id)
	require.NoError(t, err)
	assert.True(t, device.Online)
	assert.Equal(t, uint32(19), device.LogicalAddr)

	_, err = s.GetDevice(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetOnline(ctx, uuid.New(), true), ErrNotFound)
}

func TestMemoryStoreTelemetry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.RegisterDevice(ctx, 1, "13800000000", "", "")
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := s.SaveTelemetry(ctx, id, &models.TelemetryRecord{Flow: float64(i), CollectedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	records, total, err := s.ListTelemetry(ctx, id, TelemetryFilters{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, records, 2)
	assert.Equal(t, 4.0, records[0].Flow)
	assert.Equal(t, 3.0, records[1].Flow)

	start := base.Add(time.Minute)
	end := base.Add(3 * time.Minute)
	records, total, err = s.ListTelemetry(ctx, id, TelemetryFilters{StartTime: &start, EndTime: &end}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, records, 3)

	device, err := s.GetDevice(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, device.CheckTime)
	assert.Equal(t, base.Add(4*time.Minute), *device.CheckTime)

	assert.ErrorIs(t, s.SaveTelemetry(ctx, uuid.New(), &models.TelemetryRecord{}), ErrNotFound)
}

func TestMemoryStoreEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id := uuid.New()
	require.NoError(t, s.CreateEventLog(ctx, &models.EventLog{DeviceID: &id, PortID: "GPRS1", Type: models.EventTypeOnline, Level: models.EventLevelInfo}))
	require.NoError(t, s.CreateEventLog(ctx, &models.EventLog{PortID: "GPRS2", Type: models.EventTypeOffline, Level: models.EventLevelWarning}))

	offline := models.EventTypeOffline
	events, total, err := s.ListEventLogs(ctx, EventLogFilters{Type: &offline}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "GPRS2", events[0].PortID)

	events, total, err = s.ListEventLogs(ctx, EventLogFilters{DeviceID: &id}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "GPRS1", events[0].PortID)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{2, 3}, page(items, 2, 1))
	assert.Equal(t, []int{1, 2, 3, 4}, page(items, 0, 0))
	assert.Nil(t, page(items, 2, 4))
}
