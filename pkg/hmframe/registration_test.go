package hmframe

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistration(t *testing.T) {
	msg := []byte{
		0x00, 0x00, 0x00, 0x12,
		'1', '2', '3', '4', '5', '6', '7', '8', '9', '0', 'A',
		0x00,
		10, 0, 0, 7,
		0x00,
	}

	reg, err := ParseRegistration(msg)
	require.NoError(t, err)
	assert.Equal(t, uint32(18), reg.DeviceAddr)
	assert.Equal(t, "1234567890A", reg.Phone)
	assert.Equal(t, "GPRS1234567890A", reg.PortID())
	assert.Equal(t, "10.0.0.7", reg.IP.String())
}

func TestParseRegistrationErrors(t *testing.T) {
	_, err := ParseRegistration(make([]byte, 20))
	assert.ErrorIs(t, err, ErrFrameTooShort)

	_, err = ParseRegistration(make([]byte, RegistrationSize))
	assert.ErrorIs(t, err, ErrProtocol)

	msg := make([]byte, RegistrationSize)
	copy(msg[4:], "123\x01")
	_, err = ParseRegistration(msg)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestRegistrationEncode(t *testing.T) {
	reg := &Registration{DeviceAddr: 7, Phone: "13800138000", IP: net.ParseIP("192.168.1.20")}

	b, err := reg.Encode()
	require.NoError(t, err)
	require.Len(t, b, RegistrationSize)

	got, err := ParseRegistration(b)
	require.NoError(t, err)
	assert.Equal(t, reg.DeviceAddr, got.DeviceAddr)
	assert.Equal(t, reg.Phone, got.Phone)
	assert.True(t, reg.IP.Equal(got.IP))

	_, err = (&Registration{Phone: "123456789012"}).Encode()
	assert.ErrorIs(t, err, ErrEncoding)
}
