package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// PutBridge upserts one bridge header.
func (s *Store) PutBridge(ctx context.Context, record storage.BridgeRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	record.UserID = strings.TrimSpace(record.UserID)
	record.Name = strings.TrimSpace(record.Name)
	if record.ID == "" {
		return fmt.Errorf("bridge id is required")
	}
	if record.UserID == "" {
		return fmt.Errorf("bridge user id is required")
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		return fmt.Errorf("bridge timestamps are required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bridges (id, user_id, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	name = excluded.name,
	updated_at = excluded.updated_at
`, record.ID, record.UserID, record.Name, toMillis(record.CreatedAt), toMillis(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put bridge: %w", err)
	}
	return nil
}

// PutSection inserts one section. A bridge holds at most one section per type.
func (s *Store) PutSection(ctx context.Context, record storage.SectionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	record.BridgeID = strings.TrimSpace(record.BridgeID)
	if record.ID == "" || record.BridgeID == "" {
		return fmt.Errorf("section id and bridge id are required")
	}
	if record.SectionType == "" {
		return fmt.Errorf("section type is required")
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("section created_at is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sections (id, bridge_id, section_type, position, created_at)
VALUES (?, ?, ?, ?, ?)
`, record.ID, record.BridgeID, string(record.SectionType), record.Position, toMillis(record.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put section: %w", err)
	}
	return nil
}

// PutFont upserts one decorative font row.
func (s *Store) PutFont(ctx context.Context, record storage.FontRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if record.ID == "" || record.BridgeID == "" || record.SectionID == "" || record.Family == "" {
		return fmt.Errorf("font id, bridge id, section id, and family are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO fonts (id, bridge_id, section_id, family, variant, position)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	family = excluded.family,
	variant = excluded.variant,
	position = excluded.position
`, record.ID, record.BridgeID, record.SectionID, record.Family, record.Variant, record.Position)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put font: %w", err)
	}
	return nil
}

// PutColor upserts one decorative color row.
func (s *Store) PutColor(ctx context.Context, record storage.ColorRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if record.ID == "" || record.BridgeID == "" || record.SectionID == "" || record.Hex == "" {
		return fmt.Errorf("color id, bridge id, section id, and hex are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO colors (id, bridge_id, section_id, name, hex, position)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	hex = excluded.hex,
	position = excluded.position
`, record.ID, record.BridgeID, record.SectionID, record.Name, record.Hex, record.Position)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put color: %w", err)
	}
	return nil
}

// GetBridge loads one bridge header.
func (s *Store) GetBridge(ctx context.Context, bridgeID string) (storage.BridgeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.BridgeRecord{}, err
	}
	return getBridge(ctx, s.sqlDB, strings.TrimSpace(bridgeID))
}

// GetSectionByType loads the section of one type within a bridge.
func (s *Store) GetSectionByType(ctx context.Context, bridgeID string, sectionType storage.SectionType) (storage.SectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SectionRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, bridge_id, section_type, position, created_at
FROM sections
WHERE bridge_id = ? AND section_type = ?
`, strings.TrimSpace(bridgeID), string(sectionType))
	record, err := scanSection(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SectionRecord{}, storage.ErrNotFound
		}
		return storage.SectionRecord{}, fmt.Errorf("get section by type: %w", err)
	}
	return record, nil
}

func getBridge(ctx context.Context, q sqlQueryer, bridgeID string) (storage.BridgeRecord, error) {
	if bridgeID == "" {
		return storage.BridgeRecord{}, storage.ErrNotFound
	}
	var record storage.BridgeRecord
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx, `
SELECT id, user_id, name, created_at, updated_at
FROM bridges
WHERE id = ?
`, bridgeID).Scan(&record.ID, &record.UserID, &record.Name, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.BridgeRecord{}, storage.ErrNotFound
		}
		return storage.BridgeRecord{}, fmt.Errorf("get bridge: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanSection(scan scanner) (storage.SectionRecord, error) {
	var record storage.SectionRecord
	var sectionType string
	var createdAt int64
	if err := scan(&record.ID, &record.BridgeID, &sectionType, &record.Position, &createdAt); err != nil {
		return storage.SectionRecord{}, err
	}
	record.SectionType = storage.SectionType(sectionType)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
