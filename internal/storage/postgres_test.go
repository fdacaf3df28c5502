package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/models"
)

// Runs against a real database when PULLER_TEST_DSN is set.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("PULLER_TEST_DSN")
	if dsn == "" {
		t.Skip("PULLER_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewPostgresStore(ctx, dsn, PoolOptions{MaxOpenConns: 2})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })

	return s
}

func TestPostgresDeviceLifecycle(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	phone := time.Now().Format("0102150405") + "X"
	id, err := s.RegisterDevice(ctx, 18, phone, "10.0.0.1", "192.0.2.10:5000")
	require.NoError(t, err)

	again, err := s.RegisterDevice(ctx, 18, phone, "10.0.0.2", "192.0.2.10:5001")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	device, err := s.GetDeviceByPortID(ctx, "GPRS"+phone)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", device.IPAddress)
	assert.True(t, device.Online)

	collected := time.Now().UTC().Truncate(time.Minute)
	require.NoError(t, s.SaveTelemetry(ctx, id, &models.TelemetryRecord{TotalFlow: 10.5, Flow: 1.25, CollectedAt: collected}))

	records, total, err := s.ListTelemetry(ctx, id, TelemetryFilters{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, 10.5, records[0].TotalFlow)

	require.NoError(t, s.SetCollectMode(ctx, id, models.ModeHistory))
	require.NoError(t, s.SetOnline(ctx, id, false))

	device, err = s.GetDevice(ctx, id)
	require.NoError(t, err)
	assert.False(t, device.Online)
	assert.Equal(t, models.ModeHistory, device.CollectMode)
	require.NotNil(t, device.CheckTime)
	assert.True(t, collected.Equal(*device.CheckTime))

	require.NoError(t, s.CreateEventLog(ctx, &models.EventLog{DeviceID: &id, PortID: device.PortID, Type: models.EventTypeOffline, Level: models.EventLevelInfo}))
	events, _, err := s.ListEventLogs(ctx, EventLogFilters{DeviceID: &id}, 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
