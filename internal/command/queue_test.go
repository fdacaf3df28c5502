package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()

	for _, dt := range []hmframe.DataType{hmframe.ClockData, hmframe.HistoryData, hmframe.ConciseRealtimeData} {
		require.NoError(t, q.Enqueue(&models.Command{PortID: "GPRS1", DataType: dt}))
	}
	require.NoError(t, q.Enqueue(&models.Command{PortID: "GPRS2", DataType: hmframe.FloatData}))

	assert.Len(t, q.Pending("GPRS1"), 3)

	var got []hmframe.DataType
	for {
		cmd, ok := q.FetchPendingCommand(ctx, "GPRS1")
		if !ok {
			break
		}
		got = append(got, cmd.DataType)
	}
	assert.Equal(t, []hmframe.DataType{hmframe.ClockData, hmframe.HistoryData, hmframe.ConciseRealtimeData}, got)

	_, ok := q.FetchPendingCommand(ctx, "GPRS1")
	assert.False(t, ok)
	assert.Len(t, q.Pending("GPRS2"), 1)
}

func TestQueueNormalizes(t *testing.T) {
	q := NewQueue(0)
	now := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	cmd := &models.Command{PortID: "GPRS1", DataType: hmframe.HistoryData}
	require.NoError(t, q.Enqueue(cmd))

	assert.NotEmpty(t, cmd.ID.String())
	assert.Equal(t, hmframe.Interval1Min, cmd.Interval)
	assert.Equal(t, now, cmd.Timestamp)
	assert.Equal(t, now, cmd.CreatedAt)
}

func TestQueueRejects(t *testing.T) {
	q := NewQueue(2)

	err := q.Enqueue(&models.Command{PortID: "GPRS1", DataType: hmframe.DataType(9)})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.ErrorIs(t, err, hmframe.ErrEncoding)

	err = q.Enqueue(&models.Command{PortID: "GPRS1", DataType: hmframe.HistoryData, Interval: 5})
	assert.ErrorIs(t, err, hmframe.ErrInvalidInterval)

	require.NoError(t, q.Enqueue(&models.Command{PortID: "GPRS1", DataType: hmframe.ClockData}))
	require.NoError(t, q.Enqueue(&models.Command{PortID: "GPRS1", DataType: hmframe.ClockData}))
	err = q.Enqueue(&models.Command{PortID: "GPRS1", DataType: hmframe.ClockData})
	assert.ErrorIs(t, err, ErrQueueFull)

	assert.Equal(t, 2, q.Clear("GPRS1"))
	assert.Empty(t, q.Pending("GPRS1"))
	assert.Equal(t, 0, q.Clear("GPRS1"))
}
