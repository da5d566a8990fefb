// Package storage defines the asset registry records and persistence
// boundaries shared by the domain service and its SQLite implementation.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested bridge, section, asset, or rendition is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write conflicts with uniqueness or foreign key constraints.
	ErrConflict = errors.New("record conflict")
)

// AssetKind tags a source asset as an icon or an image.
type AssetKind string

const (
	// AssetKindIcon is an SVG source asset with PNG renditions.
	AssetKindIcon AssetKind = "icon"
	// AssetKindImage is a JPEG or PNG source asset with JPEG or PNG renditions.
	AssetKindImage AssetKind = "image"
)

// SectionType names a fixed section grouping within a bridge.
type SectionType string

const (
	SectionTypeIcons  SectionType = "ICONS"
	SectionTypeImages SectionType = "IMAGES"
	SectionTypeFonts  SectionType = "FONTS"
	SectionTypeColors SectionType = "COLORS"
)

// SectionTypeFor returns the section type that holds assets of kind.
func SectionTypeFor(kind AssetKind) SectionType {
	if kind == AssetKindIcon {
		return SectionTypeIcons
	}
	return SectionTypeImages
}

// BridgeRecord stores one bridge header.
type BridgeRecord struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SectionRecord stores one typed section of a bridge.
type SectionRecord struct {
	ID          string
	BridgeID    string
	SectionType SectionType
	Position    int
	CreatedAt   time.Time
}

// AssetRecord stores one source asset. Filename references the canonical
// blob and WidthRatio is width/height of its normalized decode.
type AssetRecord struct {
	ID         string
	Kind       AssetKind
	BridgeID   string
	SectionID  string
	Filename   string
	WidthRatio float64
	Position   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RenditionRecord stores one resized artifact derived from an asset.
type RenditionRecord struct {
	ID        string
	AssetID   string
	Filename  string
	Width     int
	Height    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FontRecord is a decorative bridge resource passed through opaquely.
type FontRecord struct {
	ID        string
	BridgeID  string
	SectionID string
	Family    string
	Variant   string
	Position  int
}

// ColorRecord is a decorative bridge resource passed through opaquely.
type ColorRecord struct {
	ID        string
	BridgeID  string
	SectionID string
	Name      string
	Hex       string
	Position  int
}

// AssetWithRenditions pairs an asset with its renditions, ordered by creation.
type AssetWithRenditions struct {
	AssetRecord
	Renditions []RenditionRecord
}

// BridgeGraph is the fully hydrated bridge returned to callers and carried
// by bridge-updated events.
type BridgeGraph struct {
	Bridge   BridgeRecord
	Sections []SectionRecord
	Icons    []AssetWithRenditions
	Images   []AssetWithRenditions
	Fonts    []FontRecord
	Colors   []ColorRecord
}

// BridgeEventRecord stores one published bridge-updated event.
type BridgeEventRecord struct {
	ID          string
	BridgeID    string
	EventType   string
	PayloadJSON string
	CreatedAt   time.Time
}

// BridgeStore persists bridges and their sections.
type BridgeStore interface {
	GetBridge(ctx context.Context, bridgeID string) (BridgeRecord, error)
	GetSectionByType(ctx context.Context, bridgeID string, sectionType SectionType) (SectionRecord, error)
	LoadBridgeGraph(ctx context.Context, bridgeID string) (BridgeGraph, error)
}

// AssetStore persists source assets and their renditions.
type AssetStore interface {
	// CreateAssetWithRendition inserts the asset at the next free position
	// of its section together with its first rendition, atomically.
	CreateAssetWithRendition(ctx context.Context, asset AssetRecord, rendition RenditionRecord) (AssetRecord, error)
	GetAsset(ctx context.Context, kind AssetKind, bridgeID string, assetID string) (AssetRecord, error)
	UpdateAssetSource(ctx context.Context, assetID string, filename string, widthRatio float64, updatedAt time.Time) (AssetRecord, error)
	DeleteAsset(ctx context.Context, assetID string) error
	ListSiblingAssets(ctx context.Context, kind AssetKind, sectionID string) ([]AssetRecord, error)
	UpdateAssetPosition(ctx context.Context, assetID string, position int) error
	ListRenditions(ctx context.Context, assetID string) ([]RenditionRecord, error)
	CreateRendition(ctx context.Context, rendition RenditionRecord) error
	UpdateRendition(ctx context.Context, rendition RenditionRecord) error
}

// EventStore persists the bridge-updated outbox.
type EventStore interface {
	AppendBridgeEvent(ctx context.Context, event BridgeEventRecord) error
	ListBridgeEvents(ctx context.Context, bridgeID string, limit int) ([]BridgeEventRecord, error)
}
