package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestGetBridgeAndSection(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)

	bridge, err := store.GetBridge(context.Background(), "bridge-1")
	if err != nil {
		t.Fatalf("get bridge: %v", err)
	}
	if bridge.UserID != "user-1" || bridge.Name != "Bridge bridge-1" {
		t.Fatalf("bridge = %+v", bridge)
	}
	if !bridge.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", bridge.CreatedAt, now)
	}

	section, err := store.GetSectionByType(context.Background(), "bridge-1", storage.SectionTypeIcons)
	if err != nil {
		t.Fatalf("get section: %v", err)
	}
	if section.ID != "bridge-1-icons" {
		t.Fatalf("section id = %q", section.ID)
	}

	if _, err := store.GetBridge(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing bridge err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetSectionByType(context.Background(), "bridge-1", storage.SectionTypeFonts); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing section err = %v, want ErrNotFound", err)
	}
}

func TestPutSectionRejectsDuplicateType(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)

	err := store.PutSection(context.Background(), storage.SectionRecord{
		ID:          "dup",
		BridgeID:    "bridge-1",
		SectionType: storage.SectionTypeIcons,
		CreatedAt:   now,
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCreateAssetAllocatesDensePositionsPerKind(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)

	first := createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-1", now)
	second := createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-2", now.Add(time.Second))
	image := createAsset(t, store, storage.AssetKindImage, "bridge-1", "bridge-1-images", "image-1", now)

	if first.Position != 0 || second.Position != 1 {
		t.Fatalf("icon positions = %d, %d, want 0, 1", first.Position, second.Position)
	}
	if image.Position != 0 {
		t.Fatalf("image position = %d, want 0", image.Position)
	}

	renditions, err := store.ListRenditions(context.Background(), "icon-1")
	if err != nil {
		t.Fatalf("list renditions: %v", err)
	}
	if len(renditions) != 1 || renditions[0].Width != 40 || renditions[0].Height != 20 {
		t.Fatalf("renditions = %+v", renditions)
	}
}

func TestCreateAssetConcurrentPositionsAreUnique(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)

	const count = 8
	var wg sync.WaitGroup
	errs := make(chan error, count)
	for i := range count {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assetID := fmt.Sprintf("icon-%d", i)
			_, err := store.CreateAssetWithRendition(context.Background(), assetRecord(storage.AssetKindIcon, "bridge-1", "bridge-1-icons", assetID, now), renditionRecord(assetID, now))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("create asset: %v", err)
		}
	}

	siblings, err := store.ListSiblingAssets(context.Background(), storage.AssetKindIcon, "bridge-1-icons")
	if err != nil {
		t.Fatalf("list siblings: %v", err)
	}
	positions := make([]int, 0, len(siblings))
	for _, sibling := range siblings {
		positions = append(positions, sibling.Position)
	}
	sort.Ints(positions)
	for i, position := range positions {
		if position != i {
			t.Fatalf("positions = %v, want 0..%d", positions, count-1)
		}
	}
}

func TestCreateAssetRollsBackWhenRenditionConflicts(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-1", now)

	rendition := renditionRecord("icon-2", now)
	rendition.Filename = "icon-1-full.png"
	_, err := store.CreateAssetWithRendition(context.Background(), assetRecord(storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-2", now), rendition)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if _, err := store.GetAsset(context.Background(), storage.AssetKindIcon, "bridge-1", "icon-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("rolled back asset err = %v, want ErrNotFound", err)
	}
}

func TestGetAssetIsScopedByBridgeAndKind(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)
	seedBridge(t, store, "bridge-2", "user-2", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-1", now)

	got, err := store.GetAsset(context.Background(), storage.AssetKindIcon, "bridge-1", "icon-1")
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if got.Filename != "icon-1.src" || got.WidthRatio != 2 {
		t.Fatalf("asset = %+v", got)
	}

	if _, err := store.GetAsset(context.Background(), storage.AssetKindIcon, "bridge-2", "icon-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("other bridge err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetAsset(context.Background(), storage.AssetKindImage, "bridge-1", "icon-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("other kind err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAssetSource(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-1", now)

	later := now.Add(time.Hour)
	updated, err := store.UpdateAssetSource(context.Background(), "icon-1", "next.svg", 0.5, later)
	if err != nil {
		t.Fatalf("update asset source: %v", err)
	}
	if updated.Filename != "next.svg" || updated.WidthRatio != 0.5 || !updated.UpdatedAt.Equal(later) {
		t.Fatalf("updated = %+v", updated)
	}
	if !updated.CreatedAt.Equal(now) {
		t.Fatalf("created_at changed to %v", updated.CreatedAt)
	}

	if _, err := store.UpdateAssetSource(context.Background(), "missing", "x.svg", 1, later); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
	if _, err := store.UpdateAssetSource(context.Background(), "icon-1", "x.svg", 0, later); err == nil {
		t.Fatal("expected zero ratio error")
	}
}

func TestDeleteAssetCascadesRenditions(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-1", now)
	extra := storage.RenditionRecord{
		ID:        "icon-1-r2",
		AssetID:   "icon-1",
		Filename:  "icon-1-small.png",
		Width:     10,
		Height:    5,
		CreatedAt: now.Add(time.Minute),
	}
	if err := store.CreateRendition(context.Background(), extra); err != nil {
		t.Fatalf("create rendition: %v", err)
	}

	if err := store.DeleteAsset(context.Background(), "icon-1"); err != nil {
		t.Fatalf("delete asset: %v", err)
	}
	renditions, err := store.ListRenditions(context.Background(), "icon-1")
	if err != nil {
		t.Fatalf("list renditions: %v", err)
	}
	if len(renditions) != 0 {
		t.Fatalf("renditions after delete = %d, want 0", len(renditions))
	}
	if err := store.DeleteAsset(context.Background(), "icon-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestRenditionOrderingAndUpdate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)
	createAsset(t, store, storage.AssetKindImage, "bridge-1", "bridge-1-images", "image-1", now)

	if err := store.CreateRendition(context.Background(), storage.RenditionRecord{
		ID:        "image-1-r2",
		AssetID:   "image-1",
		Filename:  "image-1-200.jpg",
		Width:     200,
		Height:    100,
		CreatedAt: now.Add(time.Minute),
	}); err != nil {
		t.Fatalf("create rendition: %v", err)
	}

	err := store.UpdateRendition(context.Background(), storage.RenditionRecord{
		ID:        "image-1-r2",
		AssetID:   "image-1",
		Filename:  "image-1-200.jpg",
		Width:     200,
		Height:    400,
		CreatedAt: now.Add(time.Minute),
		UpdatedAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("update rendition: %v", err)
	}

	renditions, err := store.ListRenditions(context.Background(), "image-1")
	if err != nil {
		t.Fatalf("list renditions: %v", err)
	}
	if len(renditions) != 2 {
		t.Fatalf("renditions = %d, want 2", len(renditions))
	}
	if renditions[0].ID != "image-1-r1" || renditions[1].ID != "image-1-r2" {
		t.Fatalf("rendition order = %s, %s", renditions[0].ID, renditions[1].ID)
	}
	if renditions[1].Height != 400 || !renditions[1].UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("updated rendition = %+v", renditions[1])
	}

	err = store.UpdateRendition(context.Background(), storage.RenditionRecord{
		ID:        "missing",
		AssetID:   "image-1",
		Filename:  "missing.jpg",
		Width:     1,
		Height:    1,
		CreatedAt: now,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing rendition err = %v, want ErrNotFound", err)
	}
}

func TestListSiblingAssetsAndUpdatePosition(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-a", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-b", now)

	if err := store.UpdateAssetPosition(context.Background(), "icon-a", 5); err != nil {
		t.Fatalf("update position: %v", err)
	}
	siblings, err := store.ListSiblingAssets(context.Background(), storage.AssetKindIcon, "bridge-1-icons")
	if err != nil {
		t.Fatalf("list siblings: %v", err)
	}
	if len(siblings) != 2 || siblings[0].ID != "icon-b" || siblings[1].ID != "icon-a" {
		t.Fatalf("siblings = %+v", siblings)
	}
	if err := store.UpdateAssetPosition(context.Background(), "missing", 0); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
	if err := store.UpdateAssetPosition(context.Background(), "icon-a", -1); err == nil {
		t.Fatal("expected negative position error")
	}
}

func TestLoadBridgeGraph(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBridge(t, store, "bridge-1", "user-1", now)
	seedBridge(t, store, "bridge-2", "user-1", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-1", now)
	createAsset(t, store, storage.AssetKindIcon, "bridge-1", "bridge-1-icons", "icon-2", now)
	createAsset(t, store, storage.AssetKindImage, "bridge-1", "bridge-1-images", "image-1", now)
	createAsset(t, store, storage.AssetKindImage, "bridge-2", "bridge-2-images", "image-other", now)

	if err := store.PutFont(context.Background(), storage.FontRecord{
		ID:        "font-1",
		BridgeID:  "bridge-1",
		SectionID: "bridge-1-fonts",
		Family:    "Inter",
		Variant:   "700",
	}); err != nil {
		t.Fatalf("put font: %v", err)
	}
	if err := store.PutColor(context.Background(), storage.ColorRecord{
		ID:        "color-1",
		BridgeID:  "bridge-1",
		SectionID: "bridge-1-colors",
		Name:      "accent",
		Hex:       "#ff8800",
	}); err != nil {
		t.Fatalf("put color: %v", err)
	}

	graph, err := store.LoadBridgeGraph(context.Background(), "bridge-1")
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	if graph.Bridge.ID != "bridge-1" {
		t.Fatalf("bridge id = %q", graph.Bridge.ID)
	}
	if len(graph.Sections) != 4 {
		t.Fatalf("sections = %d, want 4", len(graph.Sections))
	}
	if len(graph.Icons) != 2 || graph.Icons[0].ID != "icon-1" || graph.Icons[1].ID != "icon-2" {
		t.Fatalf("icons = %+v", graph.Icons)
	}
	if len(graph.Icons[0].Renditions) != 1 {
		t.Fatalf("icon renditions = %d, want 1", len(graph.Icons[0].Renditions))
	}
	if len(graph.Images) != 1 || graph.Images[0].ID != "image-1" {
		t.Fatalf("images = %+v", graph.Images)
	}
	if len(graph.Fonts) != 1 || graph.Fonts[0].Family != "Inter" {
		t.Fatalf("fonts = %+v", graph.Fonts)
	}
	if len(graph.Colors) != 1 || graph.Colors[0].Hex != "#ff8800" {
		t.Fatalf("colors = %+v", graph.Colors)
	}

	if _, err := store.LoadBridgeGraph(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing graph err = %v, want ErrNotFound", err)
	}
}

func TestBridgeEventsNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if err := store.AppendBridgeEvent(context.Background(), storage.BridgeEventRecord{
			ID:          id,
			BridgeID:    "bridge-1",
			EventType:   "bridge.updated",
			PayloadJSON: `{"ok":true}`,
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if err := store.AppendBridgeEvent(context.Background(), storage.BridgeEventRecord{
		ID:        "evt-1",
		BridgeID:  "bridge-1",
		EventType: "bridge.updated",
		CreatedAt: now,
	}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate err = %v, want ErrConflict", err)
	}

	events, err := store.ListBridgeEvents(context.Background(), "bridge-1", 2)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "evt-3" || events[1].ID != "evt-2" {
		t.Fatalf("events = %+v", events)
	}
}

func TestStoreRejectsCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.GetBridge(ctx, "bridge-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("get bridge err = %v, want context.Canceled", err)
	}
	if _, err := store.LoadBridgeGraph(ctx, "bridge-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("load graph err = %v, want context.Canceled", err)
	}
	if err := store.DeleteAsset(ctx, "icon-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("delete err = %v, want context.Canceled", err)
	}
}

func seedBridge(t *testing.T, store *Store, bridgeID, userID string, now time.Time) {
	t.Helper()
	if err := store.PutBridge(context.Background(), storage.BridgeRecord{
		ID:        bridgeID,
		UserID:    userID,
		Name:      "Bridge " + bridgeID,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put bridge: %v", err)
	}
	sections := []struct {
		suffix string
		typ    storage.SectionType
	}{
		{"icons", storage.SectionTypeIcons},
		{"images", storage.SectionTypeImages},
		{"fonts", storage.SectionTypeFonts},
		{"colors", storage.SectionTypeColors},
	}
	for i, section := range sections {
		if err := store.PutSection(context.Background(), storage.SectionRecord{
			ID:          bridgeID + "-" + section.suffix,
			BridgeID:    bridgeID,
			SectionType: section.typ,
			Position:    i,
			CreatedAt:   now,
		}); err != nil {
			t.Fatalf("put section %s: %v", section.suffix, err)
		}
	}
}

func assetRecord(kind storage.AssetKind, bridgeID, sectionID, assetID string, now time.Time) storage.AssetRecord {
	return storage.AssetRecord{
		ID:         assetID,
		Kind:       kind,
		BridgeID:   bridgeID,
		SectionID:  sectionID,
		Filename:   assetID + ".src",
		WidthRatio: 2,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func renditionRecord(assetID string, now time.Time) storage.RenditionRecord {
	return storage.RenditionRecord{
		ID:        assetID + "-r1",
		AssetID:   assetID,
		Filename:  assetID + "-full.png",
		Width:     40,
		Height:    20,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func createAsset(t *testing.T, store *Store, kind storage.AssetKind, bridgeID, sectionID, assetID string, now time.Time) storage.AssetRecord {
	t.Helper()
	created, err := store.CreateAssetWithRendition(context.Background(), assetRecord(kind, bridgeID, sectionID, assetID, now), renditionRecord(assetID, now))
	if err != nil {
		t.Fatalf("create asset %s: %v", assetID, err)
	}
	return created
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "assets.db")
	store, err := Open(storePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Fatalf("close store: %v", closeErr)
		}
	})
	return store
}
