package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog is an audit entry for a device session
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	DeviceID *uuid.UUID `json:"deviceId,omitempty" db:"device_id"`
	PortID   string     `json:"portId" db:"port_id"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	EventTypeRegister EventType = "REGISTER"
	EventTypeOnline   EventType = "ONLINE"
	EventTypeOffline  EventType = "OFFLINE"
	EventTypeMode     EventType = "MODE"
	EventTypeCommand  EventType = "COMMAND"
	EventTypeError    EventType = "ERROR"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
