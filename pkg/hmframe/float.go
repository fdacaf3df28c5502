package hmframe

import (
	"encoding/binary"
	"fmt"
	"math"
)

const mantissaBits = 24

// DecodeCustomFloat decodes the meter's 4-byte floating point format.
//
// Byte 0 holds the exponent as sign (bit 7) and magnitude (bits 0-6).
// Bit 7 of byte 1 is the mantissa sign, the remaining 23 bits are the
// mantissa, stored as a two's complement value when negative. With a
// non-negative exponent e the top e+1 bits of the 24-bit mantissa field are
// a signed integer part and the rest a binary fraction. With a negative
// exponent -m every mantissa bit i contributes 0.5^(i+m).
func DecodeCustomFloat(b []byte) (float64, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: float needs 4 bytes, got %d", ErrDecode, len(b))
	}

	expNegative := b[0]&0x80 != 0
	expMagnitude := int(b[0] & 0x7F)
	mantissaNegative := b[1]&0x80 != 0

	field := uint32(b[1]&0x7F)<<16 | uint32(b[2])<<8 | uint32(b[3])
	sign := 1.0
	if mantissaNegative {
		// sign-extend the 23-bit value, negate, keep 24 bits
		v := int32(field<<9) >> 9
		field = uint32(-v) & 0xFFFFFF
		sign = -1
	}

	if expNegative {
		return sign * math.Ldexp(float64(field), -(mantissaBits - 1 + expMagnitude)), nil
	}

	k := expMagnitude + 1
	if k > mantissaBits {
		k = mantissaBits
	}
	fracBits := mantissaBits - k

	top := int64(field >> fracBits)
	if top&(1<<(k-1)) != 0 {
		top -= 1 << k
	}
	intPart := top
	if mantissaNegative {
		intPart = -top
	}

	frac := math.Ldexp(float64(field&(1<<fracBits-1)), -fracBits)

	return float64(intPart) + sign*frac, nil
}

// DecodeCustomDouble decodes the 8-byte format: a big-endian int32 integer
// part followed by a custom float.
func DecodeCustomDouble(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: double needs 8 bytes, got %d", ErrDecode, len(b))
	}

	f, err := DecodeCustomFloat(b[4:8])
	if err != nil {
		return 0, err
	}

	return float64(int32(binary.BigEndian.Uint32(b[0:4]))) + f, nil
}

// EncodeCustomFloat encodes a non-negative value below 2^23 into the custom
// float format. The fraction is truncated to the bits left after the integer
// part, so dyadic values round-trip exactly.
func EncodeCustomFloat(v float64) ([]byte, error) {
	if math.IsNaN(v) || v < 0 || v >= 1<<(mantissaBits-1) {
		return nil, fmt.Errorf("%w: cannot encode %v", ErrEncoding, v)
	}

	intPart, frac := math.Modf(v)
	n := uint32(intPart)

	exp := 0
	for n >= 1<<exp {
		exp++
	}
	fracBits := mantissaBits - 1 - exp

	field := n<<fracBits | uint32(math.Ldexp(frac, fracBits))

	return []byte{byte(exp), byte(field>>16) & 0x7F, byte(field >> 8), byte(field)}, nil
}

// EncodeCustomDouble encodes a non-negative value as an int32 integer part
// followed by the custom float of its fraction.
func EncodeCustomDouble(v float64) ([]byte, error) {
	if math.IsNaN(v) || v < 0 || v > math.MaxInt32 {
		return nil, fmt.Errorf("%w: cannot encode %v", ErrEncoding, v)
	}

	intPart, frac := math.Modf(v)
	f, err := EncodeCustomFloat(frac)
	if err != nil {
		return nil, err
	}

	b := binary.BigEndian.AppendUint32(make([]byte, 0, 8), uint32(int32(intPart)))
	return append(b, f...), nil
}
