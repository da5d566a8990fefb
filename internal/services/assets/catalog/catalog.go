// Package catalog exposes the static, read-only section type catalog.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

//go:embed section_types.yaml
var sectionTypesYAML []byte

// SectionType is one entry of the section type catalog.
type SectionType struct {
	ID    int                 `yaml:"id" json:"id"`
	Name  storage.SectionType `yaml:"name" json:"name"`
	Label string              `yaml:"label" json:"label"`
}

type document struct {
	SectionTypes []SectionType `yaml:"section_types"`
}

var (
	loadOnce sync.Once
	loaded   []SectionType
	loadErr  error
)

// SectionTypes returns a copy of the embedded section type catalog.
func SectionTypes() ([]SectionType, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(sectionTypesYAML)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]SectionType, len(loaded))
	copy(out, loaded)
	return out, nil
}

// Parse decodes a section type catalog document and validates it.
func Parse(data []byte) ([]SectionType, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode section types: %w", err)
	}
	seen := make(map[storage.SectionType]struct{}, len(doc.SectionTypes))
	for _, entry := range doc.SectionTypes {
		if entry.Name == "" {
			return nil, fmt.Errorf("section type %d has no name", entry.ID)
		}
		if _, ok := seen[entry.Name]; ok {
			return nil, fmt.Errorf("duplicate section type %s", entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	for _, required := range []storage.SectionType{storage.SectionTypeIcons, storage.SectionTypeImages} {
		if _, ok := seen[required]; !ok {
			return nil, fmt.Errorf("section type %s is required", required)
		}
	}
	return doc.SectionTypes, nil
}
