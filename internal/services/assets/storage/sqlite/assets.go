package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

const assetColumns = `id, kind, bridge_id, section_id, filename, width_ratio, position, created_at, updated_at`

const renditionColumns = `id, asset_id, filename, width, height, created_at, updated_at`

// CreateAssetWithRendition inserts asset and its first rendition in one
// transaction. The asset position is allocated by the INSERT itself so two
// concurrent creates in the same section never share a position.
func (s *Store) CreateAssetWithRendition(ctx context.Context, asset storage.AssetRecord, rendition storage.RenditionRecord) (storage.AssetRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.AssetRecord{}, err
	}
	asset, err := normalizeAssetRecord(asset)
	if err != nil {
		return storage.AssetRecord{}, err
	}
	rendition.AssetID = asset.ID
	rendition, err = normalizeRenditionRecord(rendition)
	if err != nil {
		return storage.AssetRecord{}, err
	}

	err = s.withTx(ctx, "create asset", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO source_assets (`+assetColumns+`)
SELECT ?, ?, ?, ?, ?, ?, COALESCE(MAX(position) + 1, 0), ?, ?
FROM source_assets
WHERE section_id = ? AND kind = ?
`,
			asset.ID,
			string(asset.Kind),
			asset.BridgeID,
			asset.SectionID,
			asset.Filename,
			asset.WidthRatio,
			toMillis(asset.CreatedAt),
			toMillis(asset.UpdatedAt),
			asset.SectionID,
			string(asset.Kind),
		); err != nil {
			if isConstraintError(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert asset: %w", err)
		}
		if err := insertRendition(ctx, tx, rendition); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT position FROM source_assets WHERE id = ?`, asset.ID).Scan(&asset.Position); err != nil {
			return fmt.Errorf("read asset position: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.AssetRecord{}, err
	}
	return asset, nil
}

// GetAsset loads one asset scoped to its bridge and kind.
func (s *Store) GetAsset(ctx context.Context, kind storage.AssetKind, bridgeID string, assetID string) (storage.AssetRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.AssetRecord{}, err
	}
	bridgeID = strings.TrimSpace(bridgeID)
	assetID = strings.TrimSpace(assetID)
	if bridgeID == "" || assetID == "" {
		return storage.AssetRecord{}, storage.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+assetColumns+`
FROM source_assets
WHERE id = ? AND bridge_id = ? AND kind = ?
`, assetID, bridgeID, string(kind))
	record, err := scanAsset(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AssetRecord{}, storage.ErrNotFound
		}
		return storage.AssetRecord{}, fmt.Errorf("get asset: %w", err)
	}
	return record, nil
}

// UpdateAssetSource points an asset at a new canonical blob and ratio and
// returns the row as written.
func (s *Store) UpdateAssetSource(ctx context.Context, assetID string, filename string, widthRatio float64, updatedAt time.Time) (storage.AssetRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.AssetRecord{}, err
	}
	assetID = strings.TrimSpace(assetID)
	filename = strings.TrimSpace(filename)
	if assetID == "" {
		return storage.AssetRecord{}, storage.ErrNotFound
	}
	if filename == "" {
		return storage.AssetRecord{}, fmt.Errorf("asset filename is required")
	}
	if !(widthRatio > 0) {
		return storage.AssetRecord{}, fmt.Errorf("asset width ratio must be positive")
	}
	if updatedAt.IsZero() {
		return storage.AssetRecord{}, fmt.Errorf("asset updated_at is required")
	}

	var record storage.AssetRecord
	err := s.withTx(ctx, "update asset source", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
UPDATE source_assets
SET filename = ?, width_ratio = ?, updated_at = ?
WHERE id = ?
`, filename, widthRatio, toMillis(updatedAt), assetID)
		if err != nil {
			if isConstraintError(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("update asset source: %w", err)
		}
		if err := requireAffected(result, "update asset source"); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM source_assets WHERE id = ?`, assetID)
		record, err = scanAsset(row.Scan)
		if err != nil {
			return fmt.Errorf("reload asset: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.AssetRecord{}, err
	}
	return record, nil
}

// DeleteAsset removes one asset. Its renditions cascade.
func (s *Store) DeleteAsset(ctx context.Context, assetID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return storage.ErrNotFound
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM source_assets WHERE id = ?`, assetID)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return requireAffected(result, "delete asset")
}

// ListSiblingAssets lists assets of one kind within a section ordered by
// position.
func (s *Store) ListSiblingAssets(ctx context.Context, kind storage.AssetKind, sectionID string) ([]storage.AssetRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+assetColumns+`
FROM source_assets
WHERE section_id = ? AND kind = ?
ORDER BY position ASC, created_at ASC, id ASC
`, strings.TrimSpace(sectionID), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list sibling assets: %w", err)
	}
	defer rows.Close()

	records := make([]storage.AssetRecord, 0)
	for rows.Next() {
		record, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan sibling asset: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sibling assets: %w", err)
	}
	return records, nil
}

// UpdateAssetPosition writes one asset position.
func (s *Store) UpdateAssetPosition(ctx context.Context, assetID string, position int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if position < 0 {
		return fmt.Errorf("asset position must be non-negative")
	}
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE source_assets SET position = ? WHERE id = ?`, position, strings.TrimSpace(assetID))
	if err != nil {
		return fmt.Errorf("update asset position: %w", err)
	}
	return requireAffected(result, "update asset position")
}

// ListRenditions lists renditions of one asset in creation order.
func (s *Store) ListRenditions(ctx context.Context, assetID string) ([]storage.RenditionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return listRenditions(ctx, s.sqlDB, strings.TrimSpace(assetID))
}

// CreateRendition inserts one rendition row.
func (s *Store) CreateRendition(ctx context.Context, rendition storage.RenditionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	rendition, err := normalizeRenditionRecord(rendition)
	if err != nil {
		return err
	}
	return insertRendition(ctx, s.sqlDB, rendition)
}

// UpdateRendition rewrites the dimensions and blob reference of one
// rendition in a single statement.
func (s *Store) UpdateRendition(ctx context.Context, rendition storage.RenditionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	rendition, err := normalizeRenditionRecord(rendition)
	if err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE renditions
SET filename = ?, width = ?, height = ?, updated_at = ?
WHERE id = ? AND asset_id = ?
`, rendition.Filename, rendition.Width, rendition.Height, toMillis(rendition.UpdatedAt), rendition.ID, rendition.AssetID)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("update rendition: %w", err)
	}
	return requireAffected(result, "update rendition")
}

func insertRendition(ctx context.Context, exec sqlExecer, rendition storage.RenditionRecord) error {
	_, err := exec.ExecContext(ctx, `
INSERT INTO renditions (`+renditionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		rendition.ID,
		rendition.AssetID,
		rendition.Filename,
		rendition.Width,
		rendition.Height,
		toMillis(rendition.CreatedAt),
		toMillis(rendition.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert rendition: %w", err)
	}
	return nil
}

func listRenditions(ctx context.Context, q sqlQueryer, assetID string) ([]storage.RenditionRecord, error) {
	rows, err := q.QueryContext(ctx, `
SELECT `+renditionColumns+`
FROM renditions
WHERE asset_id = ?
ORDER BY created_at ASC, id ASC
`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list renditions: %w", err)
	}
	defer rows.Close()

	records := make([]storage.RenditionRecord, 0)
	for rows.Next() {
		record, err := scanRendition(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan rendition: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate renditions: %w", err)
	}
	return records, nil
}

func normalizeAssetRecord(record storage.AssetRecord) (storage.AssetRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.BridgeID = strings.TrimSpace(record.BridgeID)
	record.SectionID = strings.TrimSpace(record.SectionID)
	record.Filename = strings.TrimSpace(record.Filename)
	if record.ID == "" {
		return storage.AssetRecord{}, fmt.Errorf("asset id is required")
	}
	if record.Kind != storage.AssetKindIcon && record.Kind != storage.AssetKindImage {
		return storage.AssetRecord{}, fmt.Errorf("asset kind %q is invalid", record.Kind)
	}
	if record.BridgeID == "" || record.SectionID == "" {
		return storage.AssetRecord{}, fmt.Errorf("asset bridge id and section id are required")
	}
	if record.Filename == "" {
		return storage.AssetRecord{}, fmt.Errorf("asset filename is required")
	}
	if !(record.WidthRatio > 0) {
		return storage.AssetRecord{}, fmt.Errorf("asset width ratio must be positive")
	}
	if record.CreatedAt.IsZero() {
		return storage.AssetRecord{}, fmt.Errorf("asset created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeRenditionRecord(record storage.RenditionRecord) (storage.RenditionRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.AssetID = strings.TrimSpace(record.AssetID)
	record.Filename = strings.TrimSpace(record.Filename)
	if record.ID == "" || record.AssetID == "" {
		return storage.RenditionRecord{}, fmt.Errorf("rendition id and asset id are required")
	}
	if record.Filename == "" {
		return storage.RenditionRecord{}, fmt.Errorf("rendition filename is required")
	}
	if record.Width <= 0 || record.Height <= 0 {
		return storage.RenditionRecord{}, fmt.Errorf("rendition dimensions must be positive")
	}
	if record.CreatedAt.IsZero() {
		return storage.RenditionRecord{}, fmt.Errorf("rendition created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func scanAsset(scan scanner) (storage.AssetRecord, error) {
	var record storage.AssetRecord
	var kind string
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&kind,
		&record.BridgeID,
		&record.SectionID,
		&record.Filename,
		&record.WidthRatio,
		&record.Position,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.AssetRecord{}, err
	}
	record.Kind = storage.AssetKind(kind)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanRendition(scan scanner) (storage.RenditionRecord, error) {
	var record storage.RenditionRecord
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.AssetID,
		&record.Filename,
		&record.Width,
		&record.Height,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.RenditionRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
