package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

const defaultEventListLimit = 50

// AppendBridgeEvent stores one bridge-updated event in the outbox.
func (s *Store) AppendBridgeEvent(ctx context.Context, event storage.BridgeEventRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	event.ID = strings.TrimSpace(event.ID)
	event.BridgeID = strings.TrimSpace(event.BridgeID)
	event.EventType = strings.TrimSpace(event.EventType)
	if event.ID == "" || event.BridgeID == "" {
		return fmt.Errorf("event id and bridge id are required")
	}
	if event.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if event.PayloadJSON == "" {
		event.PayloadJSON = "{}"
	}
	if event.CreatedAt.IsZero() {
		return fmt.Errorf("event created_at is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bridge_events (id, bridge_id, event_type, payload_json, created_at)
VALUES (?, ?, ?, ?, ?)
`, event.ID, event.BridgeID, event.EventType, event.PayloadJSON, toMillis(event.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append bridge event: %w", err)
	}
	return nil
}

// ListBridgeEvents returns the newest events of one bridge first.
func (s *Store) ListBridgeEvents(ctx context.Context, bridgeID string, limit int) ([]storage.BridgeEventRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, bridge_id, event_type, payload_json, created_at
FROM bridge_events
WHERE bridge_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, strings.TrimSpace(bridgeID), limit)
	if err != nil {
		return nil, fmt.Errorf("list bridge events: %w", err)
	}
	defer rows.Close()

	records := make([]storage.BridgeEventRecord, 0)
	for rows.Next() {
		var record storage.BridgeEventRecord
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.BridgeID, &record.EventType, &record.PayloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bridge event: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bridge events: %w", err)
	}
	return records, nil
}
