package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// ========== Device Methods ==========

const deviceColumns = `id, port_id, phone, logical_addr, ip_address, remote_addr,
               collect_mode, online, check_time, last_seen_at, created_at, updated_at`

// RegisterDevice creates the device for phone or refreshes an existing one.
// A registered device is online and back in realtime mode.
func (s *PostgresStore) RegisterDevice(ctx context.Context, logicalAddr uint32, phone, ip, remoteAddr string) (uuid.UUID, error) {
	now := time.Now()

	query := `
        INSERT INTO devices (
            id, port_id, phone, logical_addr, ip_address, remote_addr,
            collect_mode, online, last_seen_at, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8, $8)
        ON CONFLICT (port_id) DO UPDATE SET
            phone = EXCLUDED.phone,
            logical_addr = EXCLUDED.logical_addr,
            ip_address = EXCLUDED.ip_address,
            remote_addr = EXCLUDED.remote_addr,
            collect_mode = EXCLUDED.collect_mode,
            online = TRUE,
            last_seen_at = EXCLUDED.last_seen_at,
            updated_at = EXCLUDED.updated_at
        RETURNING id`

	var id uuid.UUID
	err := s.getDB().QueryRowContext(ctx, query,
		uuid.New(), hmframe.PortIDPrefix+phone, phone, int64(logicalAddr), ip, remoteAddr,
		models.ModeRealtime, now,
	).Scan(&id)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return uuid.Nil, ErrDuplicateKey
		}
		return uuid.Nil, err
	}

	return id, nil
}

// GetDevice gets a device by id
func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceByPortID gets a device by its port id
func (s *PostgresStore) GetDeviceByPortID(ctx context.Context, portID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE port_id = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, portID))
}

// ListDevices lists devices
func (s *PostgresStore) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error) {
	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	query := `
        SELECT ` + deviceColumns + `
        FROM devices
        ORDER BY port_id
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, device)
	}

	return devices, count, rows.Err()
}

// SetOnline updates the online flag and last seen time
func (s *PostgresStore) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	now := time.Now()
	result, err := s.getDB().ExecContext(ctx,
		"UPDATE devices SET online = $2, last_seen_at = $3, updated_at = $3 WHERE id = $1",
		id, online, now,
	)
	return checkAffected(result, err)
}

// SetCollectMode records the session's current polling mode
func (s *PostgresStore) SetCollectMode(ctx context.Context, id uuid.UUID, mode models.CollectMode) error {
	result, err := s.getDB().ExecContext(ctx,
		"UPDATE devices SET collect_mode = $2, updated_at = $3 WHERE id = $1",
		id, mode, time.Now(),
	)
	return checkAffected(result, err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	device := &models.Device{}
	var logicalAddr int64
	var checkTime, lastSeen sql.NullTime

	err := row.Scan(
		&device.ID, &device.PortID, &device.Phone, &logicalAddr,
		&device.IPAddress, &device.RemoteAddr, &device.CollectMode, &device.Online,
		&checkTime, &lastSeen, &device.CreatedAt, &device.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	device.LogicalAddr = uint32(logicalAddr)
	if checkTime.Valid {
		device.CheckTime = &checkTime.Time
	}
	if lastSeen.Valid {
		device.LastSeenAt = &lastSeen.Time
	}

	return device, nil
}

func checkAffected(result sql.Result, err error) error {
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
