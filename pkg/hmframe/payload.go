package hmframe

import (
	"fmt"
	"time"
)

// Offsets of the fields inside a 32-byte history record. Bytes 0-3 are unused.
const (
	offTotalFlow    = 4
	offFlow         = 12
	offTemperature  = 16
	offPressure     = 20
	offDiffPressure = 24
	offDensity      = 28
	historyPayload  = 32
)

// DecodeHistoryPayload decodes a history record. CollectedAt is left zero.
func DecodeHistoryPayload(payload []byte) (*Telemetry, error) {
	if len(payload) < historyPayload {
		return nil, fmt.Errorf("%w: history payload of %d bytes", ErrFrameTooShort, len(payload))
	}

	var (
		t   Telemetry
		err error
	)

	if t.TotalFlow, err = DecodeCustomDouble(payload[offTotalFlow:offFlow]); err != nil {
		return nil, fmt.Errorf("total flow: %w", err)
	}

	floats := []struct {
		name string
		off  int
		dst  *float64
	}{
		{"flow", offFlow, &t.Flow},
		{"temperature", offTemperature, &t.Temperature},
		{"pressure", offPressure, &t.Pressure},
		{"diff pressure", offDiffPressure, &t.DiffPressure},
		{"density", offDensity, &t.Density},
	}
	for _, f := range floats {
		if *f.dst, err = DecodeCustomFloat(payload[f.off : f.off+4]); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	return &t, nil
}

// DecodeTelemetry decodes a response payload of the given type and stamps it
// with collectedAt. Only history records carry telemetry.
func DecodeTelemetry(dataType DataType, payload []byte, collectedAt time.Time) (*Telemetry, error) {
	if dataType != HistoryData {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, dataType)
	}

	t, err := DecodeHistoryPayload(payload)
	if err != nil {
		return nil, err
	}
	t.CollectedAt = collectedAt

	return t, nil
}

// EncodeHistoryPayload is the inverse of DecodeHistoryPayload for
// non-negative readings.
func EncodeHistoryPayload(t *Telemetry) ([]byte, error) {
	payload := make([]byte, historyPayload)

	total, err := EncodeCustomDouble(t.TotalFlow)
	if err != nil {
		return nil, fmt.Errorf("total flow: %w", err)
	}
	copy(payload[offTotalFlow:], total)

	for off, v := range map[int]float64{
		offFlow:         t.Flow,
		offTemperature:  t.Temperature,
		offPressure:     t.Pressure,
		offDiffPressure: t.DiffPressure,
		offDensity:      t.Density,
	} {
		b, err := EncodeCustomFloat(v)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", off, err)
		}
		copy(payload[off:], b)
	}

	return payload, nil
}
