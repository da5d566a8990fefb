package domain

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/bridgeassets/internal/services/assets/blobstore"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

const (
	wideSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20" viewBox="0 0 40 20"><rect width="40" height="20" fill="#0044ff"/></svg>`
	tallSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="40" viewBox="0 0 20 40"><circle cx="10" cy="20" r="8" fill="#ff4400"/></svg>`
)

var fixedNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 40, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 120, B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func sequence(prefix string) func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s-%03d", prefix, next), nil
	}
}

type fakeStore struct {
	mu         sync.Mutex
	bridges    map[string]storage.BridgeRecord
	sections   map[string]storage.SectionRecord
	assets     map[string]storage.AssetRecord
	renditions map[string]storage.RenditionRecord

	createErr          error
	updateRenditionErr map[string]error
	positionWrites     int
	afterUpdateSource  func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bridges:            map[string]storage.BridgeRecord{},
		sections:           map[string]storage.SectionRecord{},
		assets:             map[string]storage.AssetRecord{},
		renditions:         map[string]storage.RenditionRecord{},
		updateRenditionErr: map[string]error{},
	}
}

func (s *fakeStore) seedBridge(bridgeID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridges[bridgeID] = storage.BridgeRecord{ID: bridgeID, UserID: userID, Name: "Bridge", CreatedAt: fixedNow, UpdatedAt: fixedNow}
	for i, sectionType := range []storage.SectionType{storage.SectionTypeIcons, storage.SectionTypeImages} {
		section := storage.SectionRecord{
			ID:          bridgeID + "-" + strings.ToLower(string(sectionType)),
			BridgeID:    bridgeID,
			SectionType: sectionType,
			Position:    i,
			CreatedAt:   fixedNow,
		}
		s.sections[bridgeID+"/"+string(sectionType)] = section
	}
}

func (s *fakeStore) GetBridge(_ context.Context, bridgeID string) (storage.BridgeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bridge, ok := s.bridges[bridgeID]
	if !ok {
		return storage.BridgeRecord{}, storage.ErrNotFound
	}
	return bridge, nil
}

func (s *fakeStore) GetSectionByType(_ context.Context, bridgeID string, sectionType storage.SectionType) (storage.SectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	section, ok := s.sections[bridgeID+"/"+string(sectionType)]
	if !ok {
		return storage.SectionRecord{}, storage.ErrNotFound
	}
	return section, nil
}

func (s *fakeStore) LoadBridgeGraph(_ context.Context, bridgeID string) (storage.BridgeGraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bridge, ok := s.bridges[bridgeID]
	if !ok {
		return storage.BridgeGraph{}, storage.ErrNotFound
	}
	graph := storage.BridgeGraph{Bridge: bridge}
	for _, section := range s.sections {
		if section.BridgeID == bridgeID {
			graph.Sections = append(graph.Sections, section)
		}
	}
	slices.SortFunc(graph.Sections, func(a, b storage.SectionRecord) int { return a.Position - b.Position })
	for _, asset := range s.sortedAssets(func(a storage.AssetRecord) bool { return a.BridgeID == bridgeID }) {
		entry := storage.AssetWithRenditions{AssetRecord: asset, Renditions: s.renditionsOf(asset.ID)}
		if asset.Kind == storage.AssetKindIcon {
			graph.Icons = append(graph.Icons, entry)
		} else {
			graph.Images = append(graph.Images, entry)
		}
	}
	return graph, nil
}

func (s *fakeStore) CreateAssetWithRendition(_ context.Context, asset storage.AssetRecord, rendition storage.RenditionRecord) (storage.AssetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return storage.AssetRecord{}, s.createErr
	}
	position := 0
	for _, existing := range s.assets {
		if existing.SectionID == asset.SectionID && existing.Kind == asset.Kind && existing.Position >= position {
			position = existing.Position + 1
		}
	}
	asset.Position = position
	s.assets[asset.ID] = asset
	s.renditions[rendition.ID] = rendition
	return asset, nil
}

func (s *fakeStore) GetAsset(_ context.Context, kind storage.AssetKind, bridgeID string, assetID string) (storage.AssetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[assetID]
	if !ok || asset.BridgeID != bridgeID || asset.Kind != kind {
		return storage.AssetRecord{}, storage.ErrNotFound
	}
	return asset, nil
}

func (s *fakeStore) UpdateAssetSource(_ context.Context, assetID string, filename string, widthRatio float64, updatedAt time.Time) (storage.AssetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return storage.AssetRecord{}, storage.ErrNotFound
	}
	asset.Filename = filename
	asset.WidthRatio = widthRatio
	asset.UpdatedAt = updatedAt
	s.assets[assetID] = asset
	if s.afterUpdateSource != nil {
		s.afterUpdateSource()
	}
	return asset, nil
}

func (s *fakeStore) DeleteAsset(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[assetID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.assets, assetID)
	for id, rendition := range s.renditions {
		if rendition.AssetID == assetID {
			delete(s.renditions, id)
		}
	}
	return nil
}

func (s *fakeStore) ListSiblingAssets(_ context.Context, kind storage.AssetKind, sectionID string) ([]storage.AssetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAssets(func(a storage.AssetRecord) bool { return a.Kind == kind && a.SectionID == sectionID }), nil
}

func (s *fakeStore) UpdateAssetPosition(_ context.Context, assetID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return storage.ErrNotFound
	}
	asset.Position = position
	s.assets[assetID] = asset
	s.positionWrites++
	return nil
}

func (s *fakeStore) ListRenditions(_ context.Context, assetID string) ([]storage.RenditionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renditionsOf(assetID), nil
}

func (s *fakeStore) CreateRendition(_ context.Context, rendition storage.RenditionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[rendition.AssetID]; !ok {
		return storage.ErrNotFound
	}
	s.renditions[rendition.ID] = rendition
	return nil
}

func (s *fakeStore) UpdateRendition(_ context.Context, rendition storage.RenditionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateRenditionErr[rendition.ID]; err != nil {
		return err
	}
	if _, ok := s.renditions[rendition.ID]; !ok {
		return storage.ErrNotFound
	}
	s.renditions[rendition.ID] = rendition
	return nil
}

func (s *fakeStore) assetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assets)
}

func (s *fakeStore) sortedAssets(keep func(storage.AssetRecord) bool) []storage.AssetRecord {
	out := make([]storage.AssetRecord, 0)
	for _, asset := range s.assets {
		if keep(asset) {
			out = append(out, asset)
		}
	}
	slices.SortFunc(out, func(a, b storage.AssetRecord) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s *fakeStore) renditionsOf(assetID string) []storage.RenditionRecord {
	out := make([]storage.RenditionRecord, 0)
	for _, rendition := range s.renditions {
		if rendition.AssetID == assetID {
			out = append(out, rendition)
		}
	}
	slices.SortFunc(out, func(a, b storage.RenditionRecord) int { return strings.Compare(a.ID, b.ID) })
	return out
}

type fakeBlobs struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	putErr  error
	deleted []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}}
}

func (b *fakeBlobs) Put(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.blobs[name] = bytes.Clone(data)
	return nil
}

func (b *fakeBlobs) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[name]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (b *fakeBlobs) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, name)
	b.deleted = append(b.deleted, name)
	return nil
}

func (b *fakeBlobs) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[name]
	return ok
}

func (b *fakeBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

type fakeNotifier struct {
	mu     sync.Mutex
	graphs []storage.BridgeGraph
}

func (n *fakeNotifier) BridgeUpdated(_ context.Context, graph storage.BridgeGraph) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.graphs = append(n.graphs, graph)
}

func (n *fakeNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.graphs)
}
