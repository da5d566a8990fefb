package domain

import (
	"mime"
	"strings"

	apperrors "github.com/louisbranch/bridgeassets/internal/platform/errors"
	"github.com/louisbranch/bridgeassets/internal/services/assets/codec"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// kindRules holds the per-kind format rules shared by icons and images.
type kindRules struct {
	kind        storage.AssetKind
	sectionType storage.SectionType
	// sources maps accepted upload media types to their codec format.
	sources map[string]codec.Format
	// renditions lists the formats a rendition of this kind may use. The
	// first entry is the default.
	renditions []codec.Format
}

var (
	iconRules = kindRules{
		kind:        storage.AssetKindIcon,
		sectionType: storage.SectionTypeIcons,
		sources: map[string]codec.Format{
			"image/svg+xml": codec.FormatSVG,
		},
		renditions: []codec.Format{codec.FormatPNG},
	}
	imageRules = kindRules{
		kind:        storage.AssetKindImage,
		sectionType: storage.SectionTypeImages,
		sources: map[string]codec.Format{
			"image/jpeg": codec.FormatJPEG,
			"image/png":  codec.FormatPNG,
		},
		renditions: []codec.Format{codec.FormatPNG, codec.FormatJPEG},
	}
)

func rulesFor(kind storage.AssetKind) (kindRules, error) {
	switch kind {
	case storage.AssetKindIcon:
		return iconRules, nil
	case storage.AssetKindImage:
		return imageRules, nil
	default:
		return kindRules{}, apperrors.New(apperrors.CodeUnhandled, "unknown asset kind "+string(kind))
	}
}

// sourceFormat resolves a declared upload media type. Parameters such as
// charset are ignored.
func (r kindRules) sourceFormat(mimeType string) (codec.Format, error) {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(mimeType))
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	format, ok := r.sources[mediaType]
	if !ok {
		return "", r.unsupported("unsupported " + string(r.kind) + " media type " + mimeType)
	}
	return format, nil
}

// renditionFormat validates a requested rendition format. An empty value
// selects the default.
func (r kindRules) renditionFormat(format codec.Format) (codec.Format, error) {
	if format == "" {
		return r.renditions[0], nil
	}
	for _, allowed := range r.renditions {
		if allowed == format {
			return format, nil
		}
	}
	return "", r.unsupported("unsupported " + string(r.kind) + " rendition format " + string(format))
}

// storedFormat reads the format of a stored blob back from its filename.
func (r kindRules) storedFormat(filename string) (codec.Format, error) {
	format, ok := codec.FormatFromFilename(filename)
	if !ok {
		return "", apperrors.New(apperrors.CodeDecodeFailed, "stored blob has no known extension: "+filename)
	}
	return format, nil
}

func (r kindRules) unsupported(message string) error {
	return apperrors.WithMetadata(apperrors.CodeUnsupportedFormat, message, map[string]string{"Kind": string(r.kind)})
}

// ParseRenditionFormat maps a request value (jpg, jpeg, png) to a codec
// format. An empty value yields an empty format.
func ParseRenditionFormat(value string) (codec.Format, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", true
	case "png":
		return codec.FormatPNG, true
	case "jpg", "jpeg":
		return codec.FormatJPEG, true
	default:
		return "", false
	}
}
