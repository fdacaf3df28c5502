package hmframe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// PortIDPrefix is prepended to the phone number to form a port id
const PortIDPrefix = "GPRS"

const phoneLength = 11

// Registration is the 21-byte greeting a device sends after dialing in:
// u32 address, 11 ASCII phone digits, pad, u32 IPv4 address, pad.
type Registration struct {
	DeviceAddr uint32
	Phone      string
	IP         net.IP
}

// ParseRegistration decodes a registration message
func ParseRegistration(b []byte) (*Registration, error) {
	if len(b) != RegistrationSize {
		return nil, fmt.Errorf("%w: registration of %d bytes", ErrFrameTooShort, len(b))
	}

	phone := bytes.TrimRight(b[4:4+phoneLength], "\x00 ")
	if len(phone) == 0 {
		return nil, fmt.Errorf("%w: empty phone number", ErrProtocol)
	}
	for _, c := range phone {
		if c < 0x20 || c > 0x7E {
			return nil, fmt.Errorf("%w: non-printable phone number % x", ErrProtocol, phone)
		}
	}

	ip := make(net.IP, net.IPv4len)
	copy(ip, b[16:20])

	return &Registration{
		DeviceAddr: binary.BigEndian.Uint32(b[0:4]),
		Phone:      string(phone),
		IP:         ip,
	}, nil
}

// PortID returns the registry key for the device
func (r *Registration) PortID() string {
	return PortIDPrefix + r.Phone
}

// Encode serialises the registration, used by the device simulator
func (r *Registration) Encode() ([]byte, error) {
	if len(r.Phone) > phoneLength {
		return nil, fmt.Errorf("%w: phone %q longer than %d", ErrEncoding, r.Phone, phoneLength)
	}

	b := make([]byte, RegistrationSize)
	binary.BigEndian.PutUint32(b[0:4], r.DeviceAddr)
	copy(b[4:4+phoneLength], r.Phone)
	if ip4 := r.IP.To4(); ip4 != nil {
		copy(b[16:20], ip4)
	}

	return b, nil
}
