package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// TelemetryRecord is one persisted reading
type TelemetryRecord struct {
	ID       uuid.UUID `json:"id" db:"id"`
	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`

	TotalFlow    float64 `json:"totalFlow" db:"total_flow"`
	Flow         float64 `json:"flow" db:"flow"`
	Temperature  float64 `json:"temperature" db:"temperature"`
	Pressure     float64 `json:"pressure" db:"pressure"`
	DiffPressure float64 `json:"diffPressure" db:"diff_pressure"`
	Density      float64 `json:"density" db:"density"`

	CollectedAt time.Time `json:"collectedAt" db:"collected_at"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// NewTelemetryRecord copies decoded fields into a record for deviceID
func NewTelemetryRecord(deviceID uuid.UUID, t *hmframe.Telemetry) *TelemetryRecord {
	return &TelemetryRecord{
		DeviceID:     deviceID,
		TotalFlow:    t.TotalFlow,
		Flow:         t.Flow,
		Temperature:  t.Temperature,
		Pressure:     t.Pressure,
		DiffPressure: t.DiffPressure,
		Density:      t.Density,
		CollectedAt:  t.CollectedAt,
	}
}

// TelemetryMessage is the payload published to integrations
type TelemetryMessage struct {
	PortID      string    `json:"portId"`
	DeviceID    uuid.UUID `json:"deviceId"`
	LogicalAddr uint32    `json:"logicalAddr"`
	Mode        string    `json:"mode"`

	hmframe.Telemetry
}

// StatusMessage is published when a device goes online or offline
type StatusMessage struct {
	PortID    string    `json:"portId"`
	DeviceID  uuid.UUID `json:"deviceId"`
	Online    bool      `json:"online"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
