package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/monitor"
)

type recordingSink struct {
	mu        sync.Mutex
	telemetry []*models.TelemetryMessage
	status    []*models.StatusMessage
	err       error
	closed    bool
}

func (r *recordingSink) PublishTelemetry(_ context.Context, msg *models.TelemetryMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.telemetry = append(r.telemetry, msg)
	return nil
}

func (r *recordingSink) PublishStatus(_ context.Context, msg *models.StatusMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.status = append(r.status, msg)
	return nil
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMultiFansOut(t *testing.T) {
	good := &recordingSink{}
	bad := &recordingSink{err: errors.New("broker down")}

	m := NewMulti()
	m.Add("good", good)
	m.Add("flaky-test-sink", bad)
	require.Equal(t, 2, m.Len())

	before := testutil.ToFloat64(monitor.PublishErrors.WithLabelValues("flaky-test-sink"))

	err := m.PublishTelemetry(context.Background(), &models.TelemetryMessage{PortID: "GPRS1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flaky-test-sink")
	assert.Len(t, good.telemetry, 1)

	err = m.PublishStatus(context.Background(), &models.StatusMessage{PortID: "GPRS1", Online: true})
	require.Error(t, err)
	assert.Len(t, good.status, 1)

	after := testutil.ToFloat64(monitor.PublishErrors.WithLabelValues("flaky-test-sink"))
	assert.Equal(t, 2.0, after-before)

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestMultiEmpty(t *testing.T) {
	m := NewMulti()
	assert.NoError(t, m.PublishTelemetry(context.Background(), &models.TelemetryMessage{}))
	assert.NoError(t, m.PublishStatus(context.Background(), &models.StatusMessage{}))
}

func TestSubjectsAndTopics(t *testing.T) {
	assert.Equal(t, "puller.device.GPRS1380.telemetry", DeviceSubject("puller", "GPRS1380", "telemetry"))
	assert.Equal(t, "puller/device/GPRS1380/status", DeviceTopic("puller", "GPRS1380", "status"))
	assert.Equal(t, "puller:telemetry:GPRS1380:recent", RecentKey("puller:telemetry", "GPRS1380"))
}
