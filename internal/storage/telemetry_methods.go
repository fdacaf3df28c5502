package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/internal/models"
)

// SaveTelemetry inserts a reading and moves the device's check time to it
func (s *PostgresStore) SaveTelemetry(ctx context.Context, deviceID uuid.UUID, record *models.TelemetryRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.DeviceID = deviceID
	record.CreatedAt = time.Now()
	if record.CollectedAt.IsZero() {
		record.CollectedAt = record.CreatedAt
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.rollback()

	query := `
        INSERT INTO telemetry (
            id, device_id, total_flow, flow, temperature, pressure,
            diff_pressure, density, collected_at, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.getDB().ExecContext(ctx, query,
		record.ID, record.DeviceID, record.TotalFlow, record.Flow,
		record.Temperature, record.Pressure, record.DiffPressure, record.Density,
		record.CollectedAt, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}

	result, err := tx.getDB().ExecContext(ctx,
		"UPDATE devices SET check_time = $2, last_seen_at = $3, updated_at = $3 WHERE id = $1",
		deviceID, record.CollectedAt, record.CreatedAt,
	)
	if err := checkAffected(result, err); err != nil {
		return fmt.Errorf("update check time: %w", err)
	}

	return tx.commit()
}

// ListTelemetry lists readings for a device, newest first
func (s *PostgresStore) ListTelemetry(ctx context.Context, deviceID uuid.UUID, filters TelemetryFilters, limit, offset int) ([]*models.TelemetryRecord, int64, error) {
	where := " WHERE device_id = $1"
	args := []interface{}{deviceID}

	if filters.StartTime != nil {
		args = append(args, *filters.StartTime)
		where += fmt.Sprintf(" AND collected_at >= $%d", len(args))
	}

	if filters.EndTime != nil {
		args = append(args, *filters.EndTime)
		where += fmt.Sprintf(" AND collected_at <= $%d", len(args))
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM telemetry"+where, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	query := `
        SELECT id, device_id, total_flow, flow, temperature, pressure,
               diff_pressure, density, collected_at, created_at
        FROM telemetry` + where +
		fmt.Sprintf(" ORDER BY collected_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*models.TelemetryRecord
	for rows.Next() {
		r := &models.TelemetryRecord{}
		err := rows.Scan(
			&r.ID, &r.DeviceID, &r.TotalFlow, &r.Flow, &r.Temperature,
			&r.Pressure, &r.DiffPressure, &r.Density, &r.CollectedAt, &r.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}

	return records, count, rows.Err()
}
