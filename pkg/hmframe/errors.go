package hmframe

import (
	"errors"
	"fmt"
)

// Codec errors. Callers match with errors.Is.
var (
	// ErrProtocol is returned when a frame violates the fixed layout.
	ErrProtocol = errors.New("hmframe: protocol error")

	// ErrChecksum is returned when the trailing checksum byte does not match.
	ErrChecksum = errors.New("hmframe: checksum mismatch")

	// ErrDecode is the parent of all payload decoding failures.
	ErrDecode = errors.New("hmframe: decode failed")

	// ErrFrameTooShort is returned when fewer bytes are available than the
	// frame declares.
	ErrFrameTooShort = fmt.Errorf("%w: frame too short", ErrDecode)

	// ErrUnsupportedDataType is returned when a payload of a data type that
	// has no decoder is decoded.
	ErrUnsupportedDataType = fmt.Errorf("%w: unsupported data type", ErrDecode)

	// ErrEncoding is returned for bad input to the encoder.
	ErrEncoding = errors.New("hmframe: encoding failed")

	// ErrInvalidInterval is returned for a history interval other than 1, 10 or 60.
	ErrInvalidInterval = fmt.Errorf("%w: invalid interval", ErrEncoding)
)
