package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Device methods
	RegisterDevice(ctx context.Context, logicalAddr uint32, phone, ip, remoteAddr string) (uuid.UUID, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByPortID(ctx context.Context, portID string) (*models.Device, error)
	ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error)
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
	SetCollectMode(ctx context.Context, id uuid.UUID, mode models.CollectMode) error

	// Telemetry methods
	SaveTelemetry(ctx context.Context, deviceID uuid.UUID, record *models.TelemetryRecord) error
	ListTelemetry(ctx context.Context, deviceID uuid.UUID, filters TelemetryFilters, limit, offset int) ([]*models.TelemetryRecord, int64, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Schema and health
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	// Close the store
	Close() error
}

// TelemetryFilters bounds a telemetry listing by collection time
type TelemetryFilters struct {
	StartTime *time.Time
	EndTime   *time.Time
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	DeviceID  *uuid.UUID
	PortID    *string
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
