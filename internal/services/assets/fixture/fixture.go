// Package fixture loads bridge definitions from YAML and writes them into
// the asset registry. Bridges are owned by an upstream service; fixtures
// stand in for it in local development and tests.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// File is one fixture document.
type File struct {
	Bridges []Bridge `yaml:"bridges"`
}

// Bridge describes one bridge and its decorative resources. Every bridge
// gets one section per section type.
type Bridge struct {
	ID     string  `yaml:"id"`
	UserID string  `yaml:"user_id"`
	Name   string  `yaml:"name"`
	Fonts  []Font  `yaml:"fonts"`
	Colors []Color `yaml:"colors"`
}

type Font struct {
	ID      string `yaml:"id"`
	Family  string `yaml:"family"`
	Variant string `yaml:"variant"`
}

type Color struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Hex  string `yaml:"hex"`
}

// Store is the registry surface a fixture writes through.
type Store interface {
	PutBridge(ctx context.Context, record storage.BridgeRecord) error
	GetSectionByType(ctx context.Context, bridgeID string, sectionType storage.SectionType) (storage.SectionRecord, error)
	PutSection(ctx context.Context, record storage.SectionRecord) error
	PutFont(ctx context.Context, record storage.FontRecord) error
	PutColor(ctx context.Context, record storage.ColorRecord) error
}

var sectionOrder = []storage.SectionType{
	storage.SectionTypeIcons,
	storage.SectionTypeImages,
	storage.SectionTypeFonts,
	storage.SectionTypeColors,
}

// Parse decodes and validates a fixture document.
func Parse(data []byte) (File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("decode fixture: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Bridges))
	for i, bridge := range file.Bridges {
		id := strings.TrimSpace(bridge.ID)
		if id == "" {
			return File{}, fmt.Errorf("bridge %d: id is required", i)
		}
		if strings.TrimSpace(bridge.UserID) == "" {
			return File{}, fmt.Errorf("bridge %s: user_id is required", id)
		}
		if _, ok := seen[id]; ok {
			return File{}, fmt.Errorf("duplicate bridge %s", id)
		}
		seen[id] = struct{}{}
	}
	return file, nil
}

// SectionID returns the deterministic section id used for bridgeID.
func SectionID(bridgeID string, sectionType storage.SectionType) string {
	return bridgeID + "-" + strings.ToLower(string(sectionType))
}

// Apply writes every bridge in file. Re-applying a fixture updates bridge
// headers and decorative rows and keeps existing sections.
func Apply(ctx context.Context, store Store, file File, now time.Time) error {
	if store == nil {
		return errors.New("fixture store is required")
	}
	now = now.UTC()
	for _, bridge := range file.Bridges {
		if err := applyBridge(ctx, store, bridge, now); err != nil {
			return fmt.Errorf("bridge %s: %w", bridge.ID, err)
		}
	}
	return nil
}

func applyBridge(ctx context.Context, store Store, bridge Bridge, now time.Time) error {
	bridgeID := strings.TrimSpace(bridge.ID)
	if err := store.PutBridge(ctx, storage.BridgeRecord{
		ID:        bridgeID,
		UserID:    strings.TrimSpace(bridge.UserID),
		Name:      bridge.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	sections := make(map[storage.SectionType]string, len(sectionOrder))
	for position, sectionType := range sectionOrder {
		existing, err := store.GetSectionByType(ctx, bridgeID, sectionType)
		if err == nil {
			sections[sectionType] = existing.ID
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get %s section: %w", sectionType, err)
		}
		record := storage.SectionRecord{
			ID:          SectionID(bridgeID, sectionType),
			BridgeID:    bridgeID,
			SectionType: sectionType,
			Position:    position,
			CreatedAt:   now,
		}
		if err := store.PutSection(ctx, record); err != nil {
			return fmt.Errorf("put %s section: %w", sectionType, err)
		}
		sections[sectionType] = record.ID
	}

	for position, font := range bridge.Fonts {
		if err := store.PutFont(ctx, storage.FontRecord{
			ID:        fallbackID(font.ID, bridgeID, "font", position),
			BridgeID:  bridgeID,
			SectionID: sections[storage.SectionTypeFonts],
			Family:    font.Family,
			Variant:   font.Variant,
			Position:  position,
		}); err != nil {
			return fmt.Errorf("put font: %w", err)
		}
	}
	for position, color := range bridge.Colors {
		if err := store.PutColor(ctx, storage.ColorRecord{
			ID:        fallbackID(color.ID, bridgeID, "color", position),
			BridgeID:  bridgeID,
			SectionID: sections[storage.SectionTypeColors],
			Name:      color.Name,
			Hex:       color.Hex,
			Position:  position,
		}); err != nil {
			return fmt.Errorf("put color: %w", err)
		}
	}
	return nil
}

func fallbackID(id, bridgeID, kind string, position int) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return fmt.Sprintf("%s-%s-%d", bridgeID, kind, position)
}
