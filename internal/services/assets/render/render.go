// Package render shapes bridge graphs into the JSON documents returned to
// callers and carried by bridge-updated events.
package render

import (
	"time"

	"github.com/louisbranch/bridgeassets/internal/services/assets/catalog"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// Bridge is the hydrated bridge document.
type Bridge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Sections  []Section `json:"sections"`
	Icons     []Asset   `json:"icons"`
	Images    []Asset   `json:"images"`
	Fonts     []Font    `json:"fonts"`
	Colors    []Color   `json:"colors"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Section is one typed section of a bridge.
type Section struct {
	ID          string `json:"id"`
	SectionType string `json:"section_type"`
	Position    int    `json:"position"`
}

// Asset is an icon or image with its converted renditions.
type Asset struct {
	ID         string      `json:"id"`
	SectionID  string      `json:"section_id"`
	Filename   string      `json:"filename"`
	WidthRatio float64     `json:"width_ratio"`
	Order      int         `json:"order"`
	Converted  []Rendition `json:"converted"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Rendition is one converted size of an asset.
type Rendition struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Font is passed through from the bridge unchanged.
type Font struct {
	ID        string `json:"id"`
	SectionID string `json:"section_id"`
	Family    string `json:"family"`
	Variant   string `json:"variant,omitempty"`
	Order     int    `json:"order"`
}

// Color is passed through from the bridge unchanged.
type Color struct {
	ID        string `json:"id"`
	SectionID string `json:"section_id"`
	Name      string `json:"name,omitempty"`
	Hex       string `json:"hex"`
	Order     int    `json:"order"`
}

// Response is the success body of every bridge operation.
type Response struct {
	Bridge       Bridge                `json:"bridge"`
	SectionTypes []catalog.SectionType `json:"section_types"`
}

// Error is the failure body of every bridge operation.
type Error struct {
	Error string `json:"error"`
}

// NewResponse renders graph together with the section type catalog.
func NewResponse(graph storage.BridgeGraph, sectionTypes []catalog.SectionType) Response {
	if sectionTypes == nil {
		sectionTypes = []catalog.SectionType{}
	}
	return Response{Bridge: NewBridge(graph), SectionTypes: sectionTypes}
}

// NewBridge renders one hydrated bridge. Empty collections render as [].
func NewBridge(graph storage.BridgeGraph) Bridge {
	out := Bridge{
		ID:        graph.Bridge.ID,
		UserID:    graph.Bridge.UserID,
		Name:      graph.Bridge.Name,
		Sections:  make([]Section, 0, len(graph.Sections)),
		Icons:     newAssets(graph.Icons),
		Images:    newAssets(graph.Images),
		Fonts:     make([]Font, 0, len(graph.Fonts)),
		Colors:    make([]Color, 0, len(graph.Colors)),
		CreatedAt: graph.Bridge.CreatedAt,
		UpdatedAt: graph.Bridge.UpdatedAt,
	}
	for _, section := range graph.Sections {
		out.Sections = append(out.Sections, Section{
			ID:          section.ID,
			SectionType: string(section.SectionType),
			Position:    section.Position,
		})
	}
	for _, font := range graph.Fonts {
		out.Fonts = append(out.Fonts, Font{
			ID:        font.ID,
			SectionID: font.SectionID,
			Family:    font.Family,
			Variant:   font.Variant,
			Order:     font.Position,
		})
	}
	for _, color := range graph.Colors {
		out.Colors = append(out.Colors, Color{
			ID:        color.ID,
			SectionID: color.SectionID,
			Name:      color.Name,
			Hex:       color.Hex,
			Order:     color.Position,
		})
	}
	return out
}

func newAssets(assets []storage.AssetWithRenditions) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, asset := range assets {
		converted := make([]Rendition, 0, len(asset.Renditions))
		for _, rendition := range asset.Renditions {
			converted = append(converted, Rendition{
				ID:       rendition.ID,
				Filename: rendition.Filename,
				Width:    rendition.Width,
				Height:   rendition.Height,
			})
		}
		out = append(out, Asset{
			ID:         asset.ID,
			SectionID:  asset.SectionID,
			Filename:   asset.Filename,
			WidthRatio: asset.WidthRatio,
			Order:      asset.Position,
			Converted:  converted,
			CreatedAt:  asset.CreatedAt,
			UpdatedAt:  asset.UpdatedAt,
		})
	}
	return out
}
