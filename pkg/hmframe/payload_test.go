package hmframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHistoryPayload(t *testing.T) {
	payload := make([]byte, 32)
	copy(payload[4:], []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00, 0x00}) // 256.5
	copy(payload[12:], []byte{0x04, 0x64, 0x00, 0x00})                         // 12.5
	copy(payload[16:], []byte{0x01, 0x40, 0x00, 0x00})                         // 1
	copy(payload[24:], []byte{0x81, 0x40, 0x00, 0x00})                         // 0.25

	got, err := DecodeHistoryPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, 256.5, got.TotalFlow)
	assert.Equal(t, 12.5, got.Flow)
	assert.Equal(t, 1.0, got.Temperature)
	assert.Equal(t, 0.0, got.Pressure)
	assert.Equal(t, 0.25, got.DiffPressure)
	assert.Equal(t, 0.0, got.Density)
	assert.True(t, got.CollectedAt.IsZero())
}

func TestDecodeHistoryPayloadShort(t *testing.T) {
	_, err := DecodeHistoryPayload(make([]byte, 28))
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestDecodeTelemetry(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)

	want := &Telemetry{TotalFlow: 1500.25, Flow: 12.5, Temperature: 21.75, Pressure: 101.5, DiffPressure: 3.125, Density: 0.75}
	payload, err := EncodeHistoryPayload(want)
	require.NoError(t, err)

	got, err := DecodeTelemetry(HistoryData, payload, at)
	require.NoError(t, err)
	want.CollectedAt = at
	assert.Equal(t, want, got)

	for _, dt := range []DataType{FloatData, ClockData, ConciseRealtimeData, SpecificRealtimeData} {
		_, err := DecodeTelemetry(dt, payload, at)
		assert.ErrorIs(t, err, ErrUnsupportedDataType)
		assert.ErrorIs(t, err, ErrDecode)
	}
}

func TestEncodeHistoryPayloadNegative(t *testing.T) {
	_, err := EncodeHistoryPayload(&Telemetry{Temperature: -4})
	assert.ErrorIs(t, err, ErrEncoding)
}
