package hmframe

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Checksum returns the byte that makes the sum of b plus itself zero mod 256
func Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return -sum
}

// EncodeCommand builds a read request frame for the given data type.
// For HistoryData the target address is computed from interval and timestamp,
// for the other types it is the fixed bank address.
func EncodeCommand(deviceAddr byte, dataType DataType, interval int, timestamp time.Time) ([]byte, error) {
	dataLength, err := dataType.Length()
	if err != nil {
		return nil, err
	}
	if !ValidInterval(interval) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInterval, interval)
	}

	var addr uint32
	if dataType == HistoryData {
		addr, err = HistoryAddressAt(interval, timestamp)
	} else {
		addr, err = dataType.BankAddr()
	}
	if err != nil {
		return nil, err
	}

	frame := make([]byte, RequestSize)
	frame[0] = FrameMarker
	frame[1] = FrameLength
	frame[2] = deviceAddr
	frame[3] = OriginAddr
	frame[4] = CmdRead
	frame[5] = byte(addr >> 16)
	frame[6] = byte(addr >> 8)
	frame[7] = byte(addr)
	frame[8] = dataLength
	frame[9] = Checksum(frame[2:9])

	return frame, nil
}

// ValidateRequest checks marker, length and checksum of a request frame.
func ValidateRequest(frame []byte) error {
	if len(frame) < RequestSize {
		return fmt.Errorf("%w: request of %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != FrameMarker || frame[1] != FrameLength {
		return fmt.Errorf("%w: bad request header % x", ErrProtocol, frame[:2])
	}
	if sum := Checksum(frame[2:9]); sum != frame[9] {
		return fmt.Errorf("%w: want 0x%02x, got 0x%02x", ErrChecksum, sum, frame[9])
	}
	return nil
}

// RequestAddr returns the 24-bit target address carried by a request frame
func RequestAddr(frame []byte) uint32 {
	return uint32(frame[5])<<16 | uint32(frame[6])<<8 | uint32(frame[7])
}

// DecodeResponse parses a device reply. leading holds the first four bytes
// (marker, head, remaining length), remaining holds everything after them.
func DecodeResponse(leading, remaining []byte) (*Response, error) {
	if len(leading) < LeadingSize {
		return nil, fmt.Errorf("%w: leading of %d bytes", ErrFrameTooShort, len(leading))
	}

	remainLength := int(leading[3])
	if remainLength < minRemainLength {
		return nil, fmt.Errorf("%w: remaining length %d", ErrProtocol, remainLength)
	}
	if len(remaining) < remainLength {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d", ErrFrameTooShort, remainLength, len(remaining))
	}
	if len(remaining) > remainLength {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d", ErrProtocol, remainLength, len(remaining))
	}

	body := remaining[:remainLength-1]
	resp := &Response{
		Leading:   binary.BigEndian.Uint16(leading[0:2]),
		Head:      leading[2],
		Dest:      body[0],
		Org:       body[1],
		ReplyCode: body[2],
		Payload:   body[3:],
		Checksum:  remaining[remainLength-1],
	}

	if sum := Checksum(body); sum != resp.Checksum {
		return nil, fmt.Errorf("%w: want 0x%02x, got 0x%02x", ErrChecksum, sum, resp.Checksum)
	}

	return resp, nil
}

// EncodeResponse builds a device reply frame. It is the inverse of
// DecodeResponse and is used by the device simulator.
func EncodeResponse(leading uint16, head, dest, org, replyCode byte, payload []byte) ([]byte, error) {
	remainLength := minRemainLength + len(payload)
	if remainLength > 0xFF {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrEncoding, len(payload))
	}

	frame := make([]byte, 0, LeadingSize+remainLength)
	frame = binary.BigEndian.AppendUint16(frame, leading)
	frame = append(frame, head, byte(remainLength), dest, org, replyCode)
	frame = append(frame, payload...)
	frame = append(frame, Checksum(frame[LeadingSize:]))

	return frame, nil
}
