package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	apperrors "github.com/louisbranch/bridgeassets/internal/platform/errors"
	"github.com/louisbranch/bridgeassets/internal/services/assets/blobstore"
	"github.com/louisbranch/bridgeassets/internal/services/assets/codec"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
	"golang.org/x/sync/errgroup"
)

const defaultRefreshParallelism = 4

// Codec decodes, normalizes, and resizes blobs.
type Codec interface {
	Normalize(ctx context.Context, data []byte, source codec.Format) (codec.Normalized, error)
	Resize(ctx context.Context, data []byte, source codec.Format, width, height int, target codec.Format) (codec.Raster, error)
}

// BlobStore holds asset and rendition bytes by name.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// RenditionStore is the registry surface the engine needs to refresh
// renditions.
type RenditionStore interface {
	ListRenditions(ctx context.Context, assetID string) ([]storage.RenditionRecord, error)
	UpdateRendition(ctx context.Context, rendition storage.RenditionRecord) error
}

// NormalizedUpload is an upload validated and converted to canonical form.
type NormalizedUpload struct {
	Canonical       []byte
	CanonicalFormat codec.Format
	Width           int
	Height          int
	WidthRatio      float64
	// FullSize seeds the first rendition of a new asset.
	FullSize codec.Raster
}

// Source is a canonical blob read back together with the ratio from the
// same registry row.
type Source struct {
	Data       []byte
	Format     codec.Format
	WidthRatio float64
}

// RenditionFailure records why one rendition could not be refreshed.
type RenditionFailure struct {
	RenditionID string
	Err         error
}

// RefreshReport summarizes a best-effort refresh of every rendition of an
// asset.
type RefreshReport struct {
	Refreshed []string
	Failed    []RenditionFailure
}

// Err joins every failure in the report, or returns nil.
func (r RefreshReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, failure := range r.Failed {
		errs = append(errs, fmt.Errorf("rendition %q: %w", failure.RenditionID, failure.Err))
	}
	return errors.Join(errs...)
}

// Engine normalizes uploads and keeps renditions consistent with their
// source asset.
type Engine struct {
	codec       Codec
	blobs       BlobStore
	store       RenditionStore
	clock       func() time.Time
	parallelism int
}

// NewEngine builds a rendition engine. A non-positive parallelism uses a
// small default; the codec bounds CPU work independently.
func NewEngine(imageCodec Codec, blobs BlobStore, store RenditionStore, clock func() time.Time, parallelism int) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if parallelism <= 0 {
		parallelism = defaultRefreshParallelism
	}
	return &Engine{
		codec:       imageCodec,
		blobs:       blobs,
		store:       store,
		clock:       clock,
		parallelism: parallelism,
	}
}

// Normalize validates an upload against its kind and produces its canonical
// blob, dimensions, width ratio, and a full-size raster.
func (e *Engine) Normalize(ctx context.Context, data []byte, mimeType string, kind storage.AssetKind) (NormalizedUpload, error) {
	rules, err := rulesFor(kind)
	if err != nil {
		return NormalizedUpload{}, err
	}
	format, err := rules.sourceFormat(mimeType)
	if err != nil {
		return NormalizedUpload{}, err
	}
	if len(data) == 0 {
		return NormalizedUpload{}, apperrors.New(apperrors.CodeDecodeFailed, "upload is empty")
	}

	normalized, err := e.codec.Normalize(ctx, data, format)
	if err != nil {
		return NormalizedUpload{}, codecError(kind, "normalize "+string(kind), err)
	}
	if normalized.Width <= 0 || normalized.Height <= 0 {
		return NormalizedUpload{}, apperrors.New(apperrors.CodeInvalidGeometry, fmt.Sprintf("normalized %s is %dx%d", kind, normalized.Width, normalized.Height))
	}
	return NormalizedUpload{
		Canonical:       normalized.Canonical,
		CanonicalFormat: format,
		Width:           normalized.Width,
		Height:          normalized.Height,
		WidthRatio:      float64(normalized.Width) / float64(normalized.Height),
		FullSize:        normalized.FullSize,
	}, nil
}

// LoadSource reads the canonical blob of asset. The ratio comes from the
// same record that named the blob.
func (e *Engine) LoadSource(ctx context.Context, asset storage.AssetRecord) (Source, error) {
	rules, err := rulesFor(asset.Kind)
	if err != nil {
		return Source{}, err
	}
	format, err := rules.storedFormat(asset.Filename)
	if err != nil {
		return Source{}, err
	}
	data, err := e.blobs.Get(ctx, asset.Filename)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return Source{}, apperrors.Wrap(apperrors.CodeDecodeFailed, "read canonical blob", err)
		}
		return Source{}, blobError("read canonical blob", err)
	}
	return Source{Data: data, Format: format, WidthRatio: asset.WidthRatio}, nil
}

// DeriveAt resizes source to targetWidth, deriving the height from the
// source ratio. The returned raster carries the dimensions actually produced.
func (e *Engine) DeriveAt(ctx context.Context, kind storage.AssetKind, source Source, targetWidth int, target codec.Format) (codec.Raster, error) {
	rules, err := rulesFor(kind)
	if err != nil {
		return codec.Raster{}, err
	}
	target, err = rules.renditionFormat(target)
	if err != nil {
		return codec.Raster{}, err
	}
	targetHeight, err := TargetHeight(targetWidth, source.WidthRatio)
	if err != nil {
		return codec.Raster{}, err
	}
	raster, err := e.codec.Resize(ctx, source.Data, source.Format, targetWidth, targetHeight, target)
	if err != nil {
		return codec.Raster{}, codecError(kind, "derive "+string(kind)+" rendition", err)
	}
	return raster, nil
}

// TargetHeight returns round(width / widthRatio), never less than one.
func TargetHeight(width int, widthRatio float64) (int, error) {
	if width <= 0 {
		return 0, apperrors.New(apperrors.CodeInvalidGeometry, fmt.Sprintf("target width %d must be positive", width))
	}
	if !(widthRatio > 0) || math.IsInf(widthRatio, 0) {
		return 0, apperrors.New(apperrors.CodeInvalidGeometry, fmt.Sprintf("width ratio %v must be positive", widthRatio))
	}
	height := int(math.Round(float64(width) / widthRatio))
	if height < 1 {
		height = 1
	}
	return height, nil
}

// RefreshAllRenditions re-derives every rendition of asset at its stored
// width, keeping its filename and format. Each rendition is refreshed on its
// own: its blob and row change together or not at all, and one failure does
// not stop the others.
func (e *Engine) RefreshAllRenditions(ctx context.Context, asset storage.AssetRecord) RefreshReport {
	renditions, err := e.store.ListRenditions(ctx, asset.ID)
	if err != nil {
		return RefreshReport{Failed: []RenditionFailure{{Err: storeError("list renditions", err)}}}
	}
	if len(renditions) == 0 {
		return RefreshReport{}
	}

	source, err := e.LoadSource(ctx, asset)
	if err != nil {
		report := RefreshReport{Failed: make([]RenditionFailure, 0, len(renditions))}
		for _, rendition := range renditions {
			report.Failed = append(report.Failed, RenditionFailure{RenditionID: rendition.ID, Err: err})
		}
		return report
	}

	var (
		mu     sync.Mutex
		report RefreshReport
		group  errgroup.Group
	)
	group.SetLimit(e.parallelism)
	for _, rendition := range renditions {
		group.Go(func() error {
			err := e.refreshOne(ctx, asset.Kind, source, rendition)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, RenditionFailure{RenditionID: rendition.ID, Err: err})
				return nil
			}
			report.Refreshed = append(report.Refreshed, rendition.ID)
			return nil
		})
	}
	_ = group.Wait()
	return report
}

func (e *Engine) refreshOne(ctx context.Context, kind storage.AssetKind, source Source, rendition storage.RenditionRecord) error {
	rules, err := rulesFor(kind)
	if err != nil {
		return err
	}
	target, err := rules.storedFormat(rendition.Filename)
	if err != nil {
		return err
	}
	raster, err := e.DeriveAt(ctx, kind, source, rendition.Width, target)
	if err != nil {
		return err
	}

	previous, err := e.blobs.Get(ctx, rendition.Filename)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return blobError("read previous rendition", err)
	}
	hadPrevious := err == nil

	if err := e.blobs.Put(ctx, rendition.Filename, raster.Data); err != nil {
		return blobError("write rendition", err)
	}

	updated := rendition
	updated.Width = raster.Width
	updated.Height = raster.Height
	updated.UpdatedAt = e.clock().UTC()
	if err := e.store.UpdateRendition(ctx, updated); err != nil {
		e.restore(ctx, rendition.Filename, previous, hadPrevious)
		return storeError("update rendition", err)
	}
	return nil
}

// restore puts back the bytes a rendition had before a failed refresh.
func (e *Engine) restore(ctx context.Context, filename string, previous []byte, hadPrevious bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var err error
	if hadPrevious {
		err = e.blobs.Put(ctx, filename, previous)
	} else {
		err = e.blobs.Delete(ctx, filename)
	}
	if err != nil {
		log.Printf("assets: restore rendition blob %q failed: %v", filename, err)
	}
}
