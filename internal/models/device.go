package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// CollectMode is the polling mode of a device session
type CollectMode string

const (
	// ModeRealtime samples current values once per minute
	ModeRealtime CollectMode = "R"
	// ModeCommand dispatches queued commands
	ModeCommand CollectMode = "C"
	// ModeHistory backfills past records from a cursor
	ModeHistory CollectMode = "H"
)

// ParseCollectMode accepts the single-letter code or the lower-case name
func ParseCollectMode(s string) (CollectMode, error) {
	switch s {
	case "R", "realtime":
		return ModeRealtime, nil
	case "C", "command":
		return ModeCommand, nil
	case "H", "history":
		return ModeHistory, nil
	}
	return "", fmt.Errorf("unknown collect mode %q", s)
}

// String returns the mode name
func (m CollectMode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	case ModeCommand:
		return "command"
	case ModeHistory:
		return "history"
	default:
		return string(m)
	}
}

// Value implements driver.Valuer
func (m CollectMode) Value() (driver.Value, error) {
	return string(m), nil
}

// Scan implements sql.Scanner
func (m *CollectMode) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = ModeRealtime
	case []byte:
		*m = CollectMode(v)
	case string:
		*m = CollectMode(v)
	default:
		return fmt.Errorf("cannot scan %T into CollectMode", value)
	}
	return nil
}

// Device is a flow meter that has dialed in at least once
type Device struct {
	BaseModel

	PortID      string `json:"portId" db:"port_id"`
	Phone       string `json:"phone" db:"phone"`
	LogicalAddr uint32 `json:"logicalAddr" db:"logical_addr"`
	IPAddress   string `json:"ipAddress" db:"ip_address"`
	RemoteAddr  string `json:"remoteAddr" db:"remote_addr"`

	CollectMode CollectMode `json:"collectMode" db:"collect_mode"`
	Online      bool        `json:"online" db:"online"`

	// Last persisted reading
	CheckTime  *time.Time `json:"checkTime,omitempty" db:"check_time"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
}
