package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger implements audit logging to the primary SQL database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database audit logger, creating its table when missing
func NewDBLogger(ctx context.Context, db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id VARCHAR(64) PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id VARCHAR(200) NOT NULL DEFAULT '',
		resource_type VARCHAR(50) NOT NULL DEFAULT '',
		resource_id VARCHAR(255) NOT NULL DEFAULT '',
		request_id VARCHAR(100) NOT NULL DEFAULT '',
		method VARCHAR(10) NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		changes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
	`
	_, err := l.db.ExecContext(ctx, query)
	return err
}

// Log inserts an audit event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	event = Prepare(ctx, event)

	var metadataJSON, changesJSON sql.NullString
	if event.Metadata != nil {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}
	if event.Changes != nil {
		data, err := json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changesJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, event_type, status,
			user_id, resource_type, resource_id,
			request_id, method, path,
			message, metadata, changes
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13
		)
	`
	_, err := l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, string(event.EventType), string(event.Status),
		event.UserID, string(event.ResourceType), event.ResourceID,
		event.RequestID, event.Method, event.Path,
		event.Message, metadataJSON, changesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events first, up to limit
func (l *DBLogger) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status, user_id, resource_type, resource_id,
			request_id, method, path, message, changes
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType, status, resourceType string
		var changesJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &eventType, &status, &e.UserID, &resourceType, &e.ResourceID,
			&e.RequestID, &e.Method, &e.Path, &e.Message, &changesJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Status = EventStatus(status)
		e.ResourceType = ResourceType(resourceType)
		if changesJSON.Valid {
			var changes ChangeDetails
			if err := json.Unmarshal([]byte(changesJSON.String), &changes); err == nil {
				e.Changes = &changes
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close is a no-op; the database is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}
