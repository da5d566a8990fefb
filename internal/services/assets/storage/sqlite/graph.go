package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// LoadBridgeGraph hydrates a bridge with its sections, assets, renditions,
// and decorative resources from one consistent read transaction.
func (s *Store) LoadBridgeGraph(ctx context.Context, bridgeID string) (storage.BridgeGraph, error) {
	if err := s.ready(ctx); err != nil {
		return storage.BridgeGraph{}, err
	}
	bridgeID = strings.TrimSpace(bridgeID)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.BridgeGraph{}, fmt.Errorf("begin load bridge graph: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	bridge, err := getBridge(ctx, tx, bridgeID)
	if err != nil {
		return storage.BridgeGraph{}, err
	}
	graph := storage.BridgeGraph{Bridge: bridge}

	if graph.Sections, err = listSections(ctx, tx, bridgeID); err != nil {
		return storage.BridgeGraph{}, err
	}
	if graph.Icons, err = listAssetsWithRenditions(ctx, tx, bridgeID, storage.AssetKindIcon); err != nil {
		return storage.BridgeGraph{}, err
	}
	if graph.Images, err = listAssetsWithRenditions(ctx, tx, bridgeID, storage.AssetKindImage); err != nil {
		return storage.BridgeGraph{}, err
	}
	if graph.Fonts, err = listFonts(ctx, tx, bridgeID); err != nil {
		return storage.BridgeGraph{}, err
	}
	if graph.Colors, err = listColors(ctx, tx, bridgeID); err != nil {
		return storage.BridgeGraph{}, err
	}
	return graph, nil
}

func listSections(ctx context.Context, tx *sql.Tx, bridgeID string) ([]storage.SectionRecord, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id, bridge_id, section_type, position, created_at
FROM sections
WHERE bridge_id = ?
ORDER BY position ASC, id ASC
`, bridgeID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	records := make([]storage.SectionRecord, 0)
	for rows.Next() {
		record, err := scanSection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return records, nil
}

func listAssetsWithRenditions(ctx context.Context, tx *sql.Tx, bridgeID string, kind storage.AssetKind) ([]storage.AssetWithRenditions, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT `+assetColumns+`
FROM source_assets
WHERE bridge_id = ? AND kind = ?
ORDER BY position ASC, created_at ASC, id ASC
`, bridgeID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s assets: %w", kind, err)
	}
	assets := make([]storage.AssetWithRenditions, 0)
	for rows.Next() {
		record, err := scanAsset(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan %s asset: %w", kind, err)
		}
		assets = append(assets, storage.AssetWithRenditions{AssetRecord: record})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate %s assets: %w", kind, err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close %s assets: %w", kind, err)
	}

	for i := range assets {
		renditions, err := listRenditions(ctx, tx, assets[i].ID)
		if err != nil {
			return nil, err
		}
		assets[i].Renditions = renditions
	}
	return assets, nil
}

func listFonts(ctx context.Context, tx *sql.Tx, bridgeID string) ([]storage.FontRecord, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id, bridge_id, section_id, family, variant, position
FROM fonts
WHERE bridge_id = ?
ORDER BY position ASC, id ASC
`, bridgeID)
	if err != nil {
		return nil, fmt.Errorf("list fonts: %w", err)
	}
	defer rows.Close()

	records := make([]storage.FontRecord, 0)
	for rows.Next() {
		var record storage.FontRecord
		if err := rows.Scan(&record.ID, &record.BridgeID, &record.SectionID, &record.Family, &record.Variant, &record.Position); err != nil {
			return nil, fmt.Errorf("scan font: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fonts: %w", err)
	}
	return records, nil
}

func listColors(ctx context.Context, tx *sql.Tx, bridgeID string) ([]storage.ColorRecord, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id, bridge_id, section_id, name, hex, position
FROM colors
WHERE bridge_id = ?
ORDER BY position ASC, id ASC
`, bridgeID)
	if err != nil {
		return nil, fmt.Errorf("list colors: %w", err)
	}
	defer rows.Close()

	records := make([]storage.ColorRecord, 0)
	for rows.Next() {
		var record storage.ColorRecord
		if err := rows.Scan(&record.ID, &record.BridgeID, &record.SectionID, &record.Name, &record.Hex, &record.Position); err != nil {
			return nil, fmt.Errorf("scan color: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate colors: %w", err)
	}
	return records, nil
}
