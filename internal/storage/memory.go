package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// MemoryStore is a Store kept in process memory. It backs tests and the
// "memory" database DSN used with the device simulator.
type MemoryStore struct {
	mu        sync.RWMutex
	devices   map[uuid.UUID]*models.Device
	byPortID  map[string]uuid.UUID
	telemetry map[uuid.UUID][]*models.TelemetryRecord
	events    []*models.EventLog
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:   make(map[uuid.UUID]*models.Device),
		byPortID:  make(map[string]uuid.UUID),
		telemetry: make(map[uuid.UUID][]*models.TelemetryRecord),
	}
}

// RegisterDevice creates or refreshes the device for phone
func (m *MemoryStore) RegisterDevice(_ context.Context, logicalAddr uint32, phone, ip, remoteAddr string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	portID := hmframe.PortIDPrefix + phone

	device, ok := m.devices[m.byPortID[portID]]
	if !ok {
		device = &models.Device{PortID: portID}
		device.ID = uuid.New()
		device.CreatedAt = now
		m.devices[device.ID] = device
		m.byPortID[portID] = device.ID
	}

	device.Phone = phone
	device.LogicalAddr = logicalAddr
	device.IPAddress = ip
	device.RemoteAddr = remoteAddr
	device.CollectMode = models.ModeRealtime
	device.Online = true
	device.LastSeenAt = &now
	device.UpdatedAt = now

	return device.ID, nil
}

// GetDevice gets a device by id
func (m *MemoryStore) GetDevice(_ context.Context, id uuid.UUID) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *device
	return &cp, nil
}

// GetDeviceByPortID gets a device by its port id
func (m *MemoryStore) GetDeviceByPortID(ctx context.Context, portID string) (*models.Device, error) {
	m.mu.RLock()
	id, ok := m.byPortID[portID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return m.GetDevice(ctx, id)
}

// ListDevices lists devices ordered by port id
func (m *MemoryStore) ListDevices(_ context.Context, limit, offset int) ([]*models.Device, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]*models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		cp := *d
		devices = append(devices, &cp)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].PortID < devices[j].PortID })

	return page(devices, limit, offset), int64(len(devices)), nil
}

// SetOnline updates the online flag
func (m *MemoryStore) SetOnline(_ context.Context, id uuid.UUID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now()
	device.Online = online
	device.LastSeenAt = &now
	device.UpdatedAt = now
	return nil
}

// SetCollectMode records the polling mode
func (m *MemoryStore) SetCollectMode(_ context.Context, id uuid.UUID, mode models.CollectMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	device.CollectMode = mode
	device.UpdatedAt = time.Now()
	return nil
}

// SaveTelemetry stores a reading and moves the check time
func (m *MemoryStore) SaveTelemetry(_ context.Context, deviceID uuid.UUID, record *models.TelemetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[deviceID]
	if !ok {
		return ErrNotFound
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.DeviceID = deviceID
	record.CreatedAt = time.Now()
	if record.CollectedAt.IsZero() {
		record.CollectedAt = record.CreatedAt
	}

	cp := *record
	m.telemetry[deviceID] = append(m.telemetry[deviceID], &cp)

	checkTime, seen := record.CollectedAt, record.CreatedAt
	device.CheckTime = &checkTime
	device.LastSeenAt = &seen
	device.UpdatedAt = seen
	return nil
}

// ListTelemetry lists readings for a device, newest first
func (m *MemoryStore) ListTelemetry(_ context.Context, deviceID uuid.UUID, filters TelemetryFilters, limit, offset int) ([]*models.TelemetryRecord, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*models.TelemetryRecord
	for _, r := range m.telemetry[deviceID] {
		if filters.StartTime != nil && r.CollectedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && r.CollectedAt.After(*filters.EndTime) {
			continue
		}
		cp := *r
		records = append(records, &cp)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CollectedAt.After(records[j].CollectedAt) })

	return page(records, limit, offset), int64(len(records)), nil
}

// CreateEventLog appends an event
func (m *MemoryStore) CreateEventLog(_ context.Context, event *models.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

// ListEventLogs lists events newest first
func (m *MemoryStore) ListEventLogs(_ context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*models.EventLog
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if filters.DeviceID != nil && (e.DeviceID == nil || *e.DeviceID != *filters.DeviceID) {
			continue
		}
		if filters.PortID != nil && e.PortID != *filters.PortID {
			continue
		}
		if filters.Type != nil && e.Type != *filters.Type {
			continue
		}
		if filters.Level != nil && e.Level != *filters.Level {
			continue
		}
		if filters.StartTime != nil && e.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && e.CreatedAt.After(*filters.EndTime) {
			continue
		}
		cp := *e
		events = append(events, &cp)
	}

	return page(events, limit, offset), int64(len(events)), nil
}

// Migrate is a no-op
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// Ping always succeeds
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
