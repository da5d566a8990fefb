package domain

import (
	"cmp"
	"context"
	"slices"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// PositionStore persists sibling positions.
type PositionStore interface {
	UpdateAssetPosition(ctx context.Context, assetID string, position int) error
}

// ReorderAfterRemoval renumbers siblings 0..n-1 in their current order and
// writes only the rows whose position changed. It returns the number of
// rows written; a second call with the result writes nothing.
func ReorderAfterRemoval(ctx context.Context, store PositionStore, siblings []storage.AssetRecord) (int, error) {
	ordered := slices.Clone(siblings)
	slices.SortStableFunc(ordered, func(a, b storage.AssetRecord) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	written := 0
	for position, sibling := range ordered {
		if sibling.Position == position {
			continue
		}
		if err := store.UpdateAssetPosition(ctx, sibling.ID, position); err != nil {
			return written, storeError("update sibling position", err)
		}
		written++
	}
	return written, nil
}
