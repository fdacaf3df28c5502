package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/internal/models"
)

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO event_logs (
            id, created_at, device_id, port_id, type, level, description, details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.DeviceID, event.PortID,
		event.Type, event.Level, event.Description, event.Details,
	)

	return err
}

// ListEventLogs lists event logs with filters
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	// Build query with filters
	query := "SELECT COUNT(*) FROM event_logs WHERE 1=1"
	args := []interface{}{}

	if filters.DeviceID != nil {
		args = append(args, *filters.DeviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}

	if filters.PortID != nil {
		args = append(args, *filters.PortID)
		query += fmt.Sprintf(" AND port_id = $%d", len(args))
	}

	if filters.Type != nil {
		args = append(args, *filters.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}

	if filters.Level != nil {
		args = append(args, *filters.Level)
		query += fmt.Sprintf(" AND level = $%d", len(args))
	}

	if filters.StartTime != nil {
		args = append(args, *filters.StartTime)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	if filters.EndTime != nil {
		args = append(args, *filters.EndTime)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT id, created_at, device_id, port_id, type, level, description, details", 1)

	args = append(args, limit)
	selectQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	args = append(args, offset)
	selectQuery += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.getDB().QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		var deviceID uuid.NullUUID

		err := rows.Scan(
			&event.ID, &event.CreatedAt, &deviceID, &event.PortID,
			&event.Type, &event.Level, &event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}

		if deviceID.Valid {
			id := deviceID.UUID
			event.DeviceID = &id
		}

		events = append(events, event)
	}

	return events, count, rows.Err()
}
