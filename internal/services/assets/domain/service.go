// Package domain implements the bridge asset lifecycle: uploads are
// normalized into canonical blobs, renditions are derived from them, and
// every mutation returns the hydrated bridge.
package domain

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/bridgeassets/internal/platform/errors"
	"github.com/louisbranch/bridgeassets/internal/platform/id"
	platformotel "github.com/louisbranch/bridgeassets/internal/platform/otel"
	"github.com/louisbranch/bridgeassets/internal/services/assets/catalog"
	"github.com/louisbranch/bridgeassets/internal/services/assets/codec"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

const cleanupTimeout = 10 * time.Second

// refreshTimeout bounds re-deriving renditions once a new source is committed.
const refreshTimeout = 2 * time.Minute

// Store is the registry boundary for the asset service.
type Store interface {
	storage.BridgeStore
	storage.AssetStore
}

// Notifier announces that a bridge changed. Implementations must not block
// the caller and never report failures back.
type Notifier interface {
	BridgeUpdated(ctx context.Context, graph storage.BridgeGraph)
}

// Upload is one uploaded file and its declared media type.
type Upload struct {
	Data     []byte
	MIMEType string
}

// Result is returned by every successful boundary operation.
type Result struct {
	Bridge       storage.BridgeGraph
	SectionTypes []catalog.SectionType
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides row id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithTokenGenerator overrides blob name generation.
func WithTokenGenerator(newToken func() (string, error)) Option {
	return func(s *Service) {
		if newToken != nil {
			s.newToken = newToken
		}
	}
}

// WithRefreshParallelism bounds concurrent rendition refreshes per asset.
func WithRefreshParallelism(n int) Option {
	return func(s *Service) {
		s.refreshParallelism = n
	}
}

// Service orchestrates icon and image mutations for bridge owners.
type Service struct {
	store              Store
	blobs              BlobStore
	codec              Codec
	notifier           Notifier
	engine             *Engine
	clock              func() time.Time
	newID              func() (string, error)
	newToken           func() (string, error)
	refreshParallelism int
	tracer             trace.Tracer
}

// NewService constructs the asset service. A nil notifier disables
// notifications.
func NewService(store Store, blobs BlobStore, imageCodec Codec, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		blobs:    blobs,
		codec:    imageCodec,
		notifier: notifier,
		clock:    time.Now,
		newID:    id.NewID,
		newToken: id.NewToken,
		tracer:   platformotel.Tracer("github.com/louisbranch/bridgeassets/internal/services/assets/domain"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = NewEngine(imageCodec, blobs, store, s.clock, s.refreshParallelism)
	return s
}

// Engine exposes the rendition engine used by the service.
func (s *Service) Engine() *Engine {
	return s.engine
}

// CreateIcon stores an SVG icon and its full-size PNG rendition.
func (s *Service) CreateIcon(ctx context.Context, userID, bridgeID string, upload Upload) (Result, error) {
	return s.run(ctx, "CreateIcon", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.createAsset(ctx, iconRules, bridge, upload)
	})
}

// ReplaceIconFile swaps the SVG of an icon and refreshes its renditions.
func (s *Service) ReplaceIconFile(ctx context.Context, userID, bridgeID, iconID string, upload Upload) (Result, error) {
	return s.run(ctx, "ReplaceIconFile", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.replaceFile(ctx, iconRules, bridge, iconID, upload)
	})
}

// AddIconRendition adds a PNG rendition of an icon at width.
func (s *Service) AddIconRendition(ctx context.Context, userID, bridgeID, iconID string, width int) (Result, error) {
	return s.run(ctx, "AddIconRendition", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.addRendition(ctx, iconRules, bridge, iconID, width, codec.FormatPNG)
	})
}

// DeleteIcon removes an icon with its renditions and closes the gap in
// sibling order.
func (s *Service) DeleteIcon(ctx context.Context, userID, bridgeID, iconID string) (Result, error) {
	return s.run(ctx, "DeleteIcon", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.deleteAsset(ctx, iconRules, bridge, iconID)
	})
}

// CreateImage stores a JPEG or PNG image and its full-size rendition.
func (s *Service) CreateImage(ctx context.Context, userID, bridgeID string, upload Upload) (Result, error) {
	return s.run(ctx, "CreateImage", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.createAsset(ctx, imageRules, bridge, upload)
	})
}

// ReplaceImageFile swaps the file of an image and refreshes its renditions.
func (s *Service) ReplaceImageFile(ctx context.Context, userID, bridgeID, imageID string, upload Upload) (Result, error) {
	return s.run(ctx, "ReplaceImageFile", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.replaceFile(ctx, imageRules, bridge, imageID, upload)
	})
}

// AddImageRendition adds a rendition of an image at width in format. An
// empty format selects PNG.
func (s *Service) AddImageRendition(ctx context.Context, userID, bridgeID, imageID string, width int, format codec.Format) (Result, error) {
	return s.run(ctx, "AddImageRendition", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.addRendition(ctx, imageRules, bridge, imageID, width, format)
	})
}

// DeleteImage removes an image with its renditions and closes the gap in
// sibling order.
func (s *Service) DeleteImage(ctx context.Context, userID, bridgeID, imageID string) (Result, error) {
	return s.run(ctx, "DeleteImage", userID, bridgeID, func(ctx context.Context, bridge storage.BridgeRecord) error {
		return s.deleteAsset(ctx, imageRules, bridge, imageID)
	})
}

// GetBridge returns the hydrated bridge to its owner.
func (s *Service) GetBridge(ctx context.Context, userID, bridgeID string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "assets.GetBridge", trace.WithAttributes(attribute.String("bridge.id", bridgeID)))
	defer span.End()

	if _, err := s.ownedBridge(ctx, userID, bridgeID); err != nil {
		return Result{}, s.fail(span, "GetBridge", bridgeID, err)
	}
	result, err := s.load(ctx, bridgeID)
	if err != nil {
		return Result{}, s.fail(span, "GetBridge", bridgeID, err)
	}
	return result, nil
}

// run checks ownership, applies one mutation, then reloads and announces
// the bridge.
func (s *Service) run(ctx context.Context, op, userID, bridgeID string, mutate func(context.Context, storage.BridgeRecord) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "assets."+op, trace.WithAttributes(attribute.String("bridge.id", bridgeID)))
	defer span.End()

	if s.store == nil || s.blobs == nil || s.codec == nil {
		return Result{}, s.fail(span, op, bridgeID, apperrors.New(apperrors.CodeUnhandled, "asset service is not configured"))
	}
	bridge, err := s.ownedBridge(ctx, userID, bridgeID)
	if err != nil {
		return Result{}, s.fail(span, op, bridgeID, err)
	}
	if err := mutate(ctx, bridge); err != nil {
		return Result{}, s.fail(span, op, bridgeID, err)
	}
	result, err := s.load(ctx, bridge.ID)
	if err != nil {
		return Result{}, s.fail(span, op, bridgeID, err)
	}
	if s.notifier != nil {
		s.notifier.BridgeUpdated(ctx, result.Bridge)
	}
	return result, nil
}

func (s *Service) ownedBridge(ctx context.Context, userID, bridgeID string) (storage.BridgeRecord, error) {
	userID = strings.TrimSpace(userID)
	bridgeID = strings.TrimSpace(bridgeID)
	if userID == "" || bridgeID == "" {
		return storage.BridgeRecord{}, errEntryNotFound("bridge not found")
	}
	bridge, err := s.store.GetBridge(ctx, bridgeID)
	if err != nil {
		return storage.BridgeRecord{}, storeError("bridge not found", err)
	}
	if bridge.UserID != userID {
		return storage.BridgeRecord{}, errEntryNotFound("bridge not found")
	}
	return bridge, nil
}

func (s *Service) load(ctx context.Context, bridgeID string) (Result, error) {
	graph, err := s.store.LoadBridgeGraph(ctx, bridgeID)
	if err != nil {
		return Result{}, storeError("load bridge graph", err)
	}
	sectionTypes, err := catalog.SectionTypes()
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeUnhandled, "load section types", err)
	}
	return Result{Bridge: graph, SectionTypes: sectionTypes}, nil
}

func (s *Service) createAsset(ctx context.Context, rules kindRules, bridge storage.BridgeRecord, upload Upload) error {
	section, err := s.store.GetSectionByType(ctx, bridge.ID, rules.sectionType)
	if err != nil {
		return storeError(string(rules.sectionType)+" section not found", err)
	}
	normalized, err := s.engine.Normalize(ctx, upload.Data, upload.MIMEType, rules.kind)
	if err != nil {
		return err
	}

	sourceName, err := s.blobName(normalized.CanonicalFormat)
	if err != nil {
		return err
	}
	renditionName, err := s.blobName(normalized.FullSize.Format)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, sourceName, normalized.Canonical); err != nil {
		return blobError("store canonical blob", err)
	}
	if err := s.blobs.Put(ctx, renditionName, normalized.FullSize.Data); err != nil {
		s.cleanup(ctx, sourceName)
		return blobError("store full-size rendition", err)
	}

	assetID, err := s.newID()
	if err != nil {
		s.cleanup(ctx, sourceName, renditionName)
		return apperrors.Wrap(apperrors.CodeUnhandled, "generate asset id", err)
	}
	renditionID, err := s.newID()
	if err != nil {
		s.cleanup(ctx, sourceName, renditionName)
		return apperrors.Wrap(apperrors.CodeUnhandled, "generate rendition id", err)
	}
	now := s.clock().UTC()
	_, err = s.store.CreateAssetWithRendition(ctx, storage.AssetRecord{
		ID:         assetID,
		Kind:       rules.kind,
		BridgeID:   bridge.ID,
		SectionID:  section.ID,
		Filename:   sourceName,
		WidthRatio: normalized.WidthRatio,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, storage.RenditionRecord{
		ID:        renditionID,
		AssetID:   assetID,
		Filename:  renditionName,
		Width:     normalized.FullSize.Width,
		Height:    normalized.FullSize.Height,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.cleanup(ctx, sourceName, renditionName)
		return storeError("create "+string(rules.kind), err)
	}
	return nil
}

func (s *Service) replaceFile(ctx context.Context, rules kindRules, bridge storage.BridgeRecord, assetID string, upload Upload) error {
	asset, err := s.store.GetAsset(ctx, rules.kind, bridge.ID, strings.TrimSpace(assetID))
	if err != nil {
		return storeError(string(rules.kind)+" not found", err)
	}
	normalized, err := s.engine.Normalize(ctx, upload.Data, upload.MIMEType, rules.kind)
	if err != nil {
		return err
	}
	sourceName, err := s.blobName(normalized.CanonicalFormat)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, sourceName, normalized.Canonical); err != nil {
		return blobError("store canonical blob", err)
	}

	updated, err := s.store.UpdateAssetSource(ctx, asset.ID, sourceName, normalized.WidthRatio, s.clock().UTC())
	if err != nil {
		s.cleanup(ctx, sourceName)
		return storeError("replace "+string(rules.kind)+" file", err)
	}

	// The new source is committed; renditions follow it even if the caller
	// goes away.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	report := s.engine.RefreshAllRenditions(refreshCtx, updated)
	cancel()
	for _, failure := range report.Failed {
		log.Printf("assets: refresh rendition failed bridge=%q asset=%q rendition=%q err=%v", bridge.ID, updated.ID, failure.RenditionID, failure.Err)
	}
	if asset.Filename != updated.Filename {
		s.cleanup(ctx, asset.Filename)
	}
	return nil
}

func (s *Service) addRendition(ctx context.Context, rules kindRules, bridge storage.BridgeRecord, assetID string, width int, format codec.Format) error {
	format, err := rules.renditionFormat(format)
	if err != nil {
		return err
	}
	if width <= 0 {
		return apperrors.New(apperrors.CodeInvalidGeometry, "rendition width must be positive")
	}
	asset, err := s.store.GetAsset(ctx, rules.kind, bridge.ID, strings.TrimSpace(assetID))
	if err != nil {
		return storeError(string(rules.kind)+" not found", err)
	}
	height, err := TargetHeight(width, asset.WidthRatio)
	if err != nil {
		return err
	}
	if width > codec.MaxDimension || height > codec.MaxDimension {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, fmt.Sprintf("rendition %dx%d exceeds limits", width, height), map[string]string{
			"Field":  "width",
			"Reason": fmt.Sprintf("derived height %d exceeds %d", height, codec.MaxDimension),
		})
	}
	source, err := s.engine.LoadSource(ctx, asset)
	if err != nil {
		return err
	}
	raster, err := s.engine.DeriveAt(ctx, rules.kind, source, width, format)
	if err != nil {
		return err
	}

	name, err := s.blobName(raster.Format)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, name, raster.Data); err != nil {
		return blobError("store rendition", err)
	}
	renditionID, err := s.newID()
	if err != nil {
		s.cleanup(ctx, name)
		return apperrors.Wrap(apperrors.CodeUnhandled, "generate rendition id", err)
	}
	now := s.clock().UTC()
	if err := s.store.CreateRendition(ctx, storage.RenditionRecord{
		ID:        renditionID,
		AssetID:   asset.ID,
		Filename:  name,
		Width:     raster.Width,
		Height:    raster.Height,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		s.cleanup(ctx, name)
		return storeError("create rendition", err)
	}
	return nil
}

func (s *Service) deleteAsset(ctx context.Context, rules kindRules, bridge storage.BridgeRecord, assetID string) error {
	asset, err := s.store.GetAsset(ctx, rules.kind, bridge.ID, strings.TrimSpace(assetID))
	if err != nil {
		return storeError(string(rules.kind)+" not found", err)
	}
	renditions, err := s.store.ListRenditions(ctx, asset.ID)
	if err != nil {
		return storeError("list renditions", err)
	}
	if err := s.store.DeleteAsset(ctx, asset.ID); err != nil {
		return storeError("delete "+string(rules.kind), err)
	}

	siblings, err := s.store.ListSiblingAssets(ctx, rules.kind, asset.SectionID)
	if err != nil {
		return storeError("list siblings", err)
	}
	if _, err := ReorderAfterRemoval(ctx, s.store, siblings); err != nil {
		return err
	}

	names := make([]string, 0, len(renditions)+1)
	names = append(names, asset.Filename)
	for _, rendition := range renditions {
		names = append(names, rendition.Filename)
	}
	s.cleanup(ctx, names...)
	return nil
}

func (s *Service) blobName(format codec.Format) (string, error) {
	token, err := s.newToken()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnhandled, "generate blob name", err)
	}
	return token + "." + format.Extension(), nil
}

// cleanup deletes blobs no row references any more. Failures only leave
// garbage behind and are logged.
func (s *Service) cleanup(ctx context.Context, names ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, name); err != nil {
			log.Printf("assets: delete blob %q failed: %v", name, err)
		}
	}
}

// fail records err on the span and logs failures that callers only see as
// a generic server error.
func (s *Service) fail(span trace.Span, op, bridgeID string, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, string(apperrors.CodeOf(err)))
	if !apperrors.CodeOf(err).UserFacing() {
		log.Printf("assets: %s failed bridge=%q err=%v", op, bridgeID, err)
	}
	return err
}
