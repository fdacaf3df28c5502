package hmframe

import (
	"fmt"
	"time"
)

// Request frame constants
const (
	FrameMarker byte = 0x7E
	FrameLength byte = 0x08
	CmdRead     byte = 0x46
	OriginAddr  byte = 0x00
)

// Wire sizes in bytes
const (
	RequestSize      = 10
	LeadingSize      = 4
	RegistrationSize = 21

	// dest + org + reply code + checksum
	minRemainLength = 4
)

// DataType selects which memory bank a request targets
type DataType byte

const (
	FloatData DataType = iota
	ClockData
	ConciseRealtimeData
	SpecificRealtimeData
	HistoryData
)

// Fixed bank addresses, indexed by DataType. HistoryData is computed.
var dataAddrs = [...]uint32{
	8,        // 5 floats: flow, temperature, pressure, density, diff pressure
	16646192, // device clock
	16711806, // concise realtime sensor data
	16711796, // specific realtime sensor data
}

// Requested data lengths in bytes, indexed by DataType
var dataLengths = [...]byte{20, 8, 28, 32, 32}

// Valid reports whether t is one of the five supported codes
func (t DataType) Valid() bool {
	return int(t) < len(dataLengths)
}

// Length returns the payload length the device replies with for t
func (t DataType) Length() (byte, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: data type %d", ErrEncoding, t)
	}
	return dataLengths[t], nil
}

// BankAddr returns the fixed address of a non-history bank
func (t DataType) BankAddr() (uint32, error) {
	if int(t) >= len(dataAddrs) {
		return 0, fmt.Errorf("%w: data type %d has no fixed bank", ErrEncoding, t)
	}
	return dataAddrs[t], nil
}

// String returns the bank name
func (t DataType) String() string {
	switch t {
	case FloatData:
		return "float"
	case ClockData:
		return "clock"
	case ConciseRealtimeData:
		return "concise_realtime"
	case SpecificRealtimeData:
		return "specific_realtime"
	case HistoryData:
		return "history"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Supported history intervals in minutes
const (
	Interval1Min  = 1
	Interval10Min = 10
	Interval60Min = 60
)

// ValidInterval reports whether the device keeps history at this interval
func ValidInterval(interval int) bool {
	switch interval {
	case Interval1Min, Interval10Min, Interval60Min:
		return true
	}
	return false
}

// Response is a decoded device reply
type Response struct {
	Leading   uint16
	Head      byte
	Dest      byte
	Org       byte
	ReplyCode byte
	Payload   []byte
	Checksum  byte
}

// Telemetry holds the fields decoded from a history record
type Telemetry struct {
	TotalFlow    float64   `json:"totalFlow"`
	Flow         float64   `json:"flow"`
	Temperature  float64   `json:"temperature"`
	Pressure     float64   `json:"pressure"`
	DiffPressure float64   `json:"diffPressure"`
	Density      float64   `json:"density"`
	CollectedAt  time.Time `json:"collectedAt"`
}
