package hmframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCustomFloat(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want float64
	}{
		{"zero", []byte{0, 0, 0, 0}, 0},
		{"one", []byte{0x01, 0x40, 0x00, 0x00}, 1},
		{"twelve and a half", []byte{0x04, 0x64, 0x00, 0x00}, 12.5},
		{"exponent zero half", []byte{0x00, 0x40, 0x00, 0x00}, 0.5},
		{"negative exponent", []byte{0x81, 0x40, 0x00, 0x00}, 0.25},
		{"negative mantissa", []byte{0x01, 0xC0, 0x00, 0x00}, -1},
		{"negative mantissa fraction", []byte{0x81, 0xFF, 0xFF, 0xFF}, -1.0 / (1 << 24)},
		{"large exponent", []byte{0x7F, 0x00, 0x00, 0x05}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCustomFloat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCustomFloatLength(t *testing.T) {
	_, err := DecodeCustomFloat([]byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeCustomDouble(t *testing.T) {
	got, err := DecodeCustomDouble([]byte{0x00, 0x01, 0x00, 0x00, 0x04, 0x64, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 65536+12.5, got)

	got, err = DecodeCustomDouble([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x40, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, -0.5, got)

	_, err = DecodeCustomDouble(make([]byte, 4))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestCustomFloatRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 0.5, 0.25, 1, 3, 12.5, 101.325, 998.2, 4096.0625, 8388607} {
		b, err := EncodeCustomFloat(v)
		require.NoError(t, err)

		got, err := DecodeCustomFloat(b)
		require.NoError(t, err)
		assert.InDelta(t, v, got, 1e-4, "value %v bytes % x", v, b)
	}
}

func TestEncodeCustomFloatRange(t *testing.T) {
	for _, v := range []float64{-1, 1 << 23} {
		_, err := EncodeCustomFloat(v)
		assert.ErrorIs(t, err, ErrEncoding)
	}
}

func TestCustomDoubleRoundTrip(t *testing.T) {
	b, err := EncodeCustomDouble(123456.75)
	require.NoError(t, err)
	require.Len(t, b, 8)

	got, err := DecodeCustomDouble(b)
	require.NoError(t, err)
	assert.Equal(t, 123456.75, got)
}
