// Package httpapi exposes the bridge asset service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/bridgeassets/internal/platform/errors"
	"github.com/louisbranch/bridgeassets/internal/platform/requestctx"
	"github.com/louisbranch/bridgeassets/internal/services/assets/codec"
	"github.com/louisbranch/bridgeassets/internal/services/assets/domain"
	"github.com/louisbranch/bridgeassets/internal/services/assets/render"
)

const (
	// DefaultMaxUploadBytes bounds one multipart upload request.
	DefaultMaxUploadBytes = 16 << 20
	// MaxRenditionWidth bounds the width of a requested rendition.
	MaxRenditionWidth = 8192

	multipartMemory = 8 << 20

	iconField  = "icon"
	imageField = "image"
)

// Service is the asset domain surface served over HTTP.
type Service interface {
	CreateIcon(ctx context.Context, userID, bridgeID string, upload domain.Upload) (domain.Result, error)
	ReplaceIconFile(ctx context.Context, userID, bridgeID, iconID string, upload domain.Upload) (domain.Result, error)
	AddIconRendition(ctx context.Context, userID, bridgeID, iconID string, width int) (domain.Result, error)
	DeleteIcon(ctx context.Context, userID, bridgeID, iconID string) (domain.Result, error)
	CreateImage(ctx context.Context, userID, bridgeID string, upload domain.Upload) (domain.Result, error)
	ReplaceImageFile(ctx context.Context, userID, bridgeID, imageID string, upload domain.Upload) (domain.Result, error)
	AddImageRendition(ctx context.Context, userID, bridgeID, imageID string, width int, format codec.Format) (domain.Result, error)
	DeleteImage(ctx context.Context, userID, bridgeID, imageID string) (domain.Result, error)
	GetBridge(ctx context.Context, userID, bridgeID string) (domain.Result, error)
}

// Options tunes request handling.
type Options struct {
	MaxUploadBytes int64
}

type handler struct {
	service        Service
	auth           Authenticator
	maxUploadBytes int64
}

type renditionRequest struct {
	Width  json.Number `json:"width"`
	Format string      `json:"format"`
}

// NewHandler builds the HTTP routes for service.
func NewHandler(service Service, auth Authenticator, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	h := &handler{service: service, auth: auth, maxUploadBytes: opts.MaxUploadBytes}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("GET /v1/bridges/{bridgeID}", h.authenticated(h.getBridge))

	mux.Handle("POST /v1/bridges/{bridgeID}/icons", h.authenticated(h.createIcon))
	mux.Handle("POST /v1/bridges/{bridgeID}/icons/{assetID}/file", h.authenticated(h.replaceIconFile))
	mux.Handle("POST /v1/bridges/{bridgeID}/icons/{assetID}/converted", h.authenticated(h.addIconRendition))
	mux.Handle("DELETE /v1/bridges/{bridgeID}/icons/{assetID}", h.authenticated(h.deleteIcon))

	mux.Handle("POST /v1/bridges/{bridgeID}/images", h.authenticated(h.createImage))
	mux.Handle("POST /v1/bridges/{bridgeID}/images/{assetID}/file", h.authenticated(h.replaceImageFile))
	mux.Handle("POST /v1/bridges/{bridgeID}/images/{assetID}/converted", h.authenticated(h.addImageRendition))
	mux.Handle("DELETE /v1/bridges/{bridgeID}/images/{assetID}", h.authenticated(h.deleteImage))

	return mux
}

type operation func(r *http.Request, userID string) (domain.Result, error)

// authenticated resolves the caller, runs op, and writes its result.
func (h *handler) authenticated(op operation) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestctx.WithLocale(r.Context(), resolveLocale(r))
		r = r.WithContext(ctx)

		if h.auth == nil {
			writeError(w, r, apperrors.New(apperrors.CodeUnhandled, "authentication is not configured"))
			return
		}
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, r, apperrors.Wrap(apperrors.CodeUnauthenticated, "missing credentials", err))
			return
		}
		userID, err := h.auth.Authenticate(ctx, token)
		if err != nil || strings.TrimSpace(userID) == "" {
			log.Printf("assets: unauthorized request path=%q remote=%s err=%v", r.URL.Path, r.RemoteAddr, err)
			writeError(w, r, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid credentials", err))
			return
		}
		r = r.WithContext(requestctx.WithUserID(ctx, userID))

		result, err := op(r, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, render.NewResponse(result.Bridge, result.SectionTypes))
	})
}

func (h *handler) getBridge(r *http.Request, userID string) (domain.Result, error) {
	return h.service.GetBridge(r.Context(), userID, r.PathValue("bridgeID"))
}

func (h *handler) createIcon(r *http.Request, userID string) (domain.Result, error) {
	upload, err := h.readUpload(r, iconField)
	if err != nil {
		return domain.Result{}, err
	}
	return h.service.CreateIcon(r.Context(), userID, r.PathValue("bridgeID"), upload)
}

func (h *handler) replaceIconFile(r *http.Request, userID string) (domain.Result, error) {
	upload, err := h.readUpload(r, iconField)
	if err != nil {
		return domain.Result{}, err
	}
	return h.service.ReplaceIconFile(r.Context(), userID, r.PathValue("bridgeID"), r.PathValue("assetID"), upload)
}

func (h *handler) addIconRendition(r *http.Request, userID string) (domain.Result, error) {
	req, err := readRenditionRequest(r)
	if err != nil {
		return domain.Result{}, err
	}
	width, err := parseWidth(req.Width.String())
	if err != nil {
		return domain.Result{}, err
	}
	return h.service.AddIconRendition(r.Context(), userID, r.PathValue("bridgeID"), r.PathValue("assetID"), width)
}

func (h *handler) deleteIcon(r *http.Request, userID string) (domain.Result, error) {
	return h.service.DeleteIcon(r.Context(), userID, r.PathValue("bridgeID"), r.PathValue("assetID"))
}

func (h *handler) createImage(r *http.Request, userID string) (domain.Result, error) {
	upload, err := h.readUpload(r, imageField)
	if err != nil {
		return domain.Result{}, err
	}
	return h.service.CreateImage(r.Context(), userID, r.PathValue("bridgeID"), upload)
}

func (h *handler) replaceImageFile(r *http.Request, userID string) (domain.Result, error) {
	upload, err := h.readUpload(r, imageField)
	if err != nil {
		return domain.Result{}, err
	}
	return h.service.ReplaceImageFile(r.Context(), userID, r.PathValue("bridgeID"), r.PathValue("assetID"), upload)
}

func (h *handler) addImageRendition(r *http.Request, userID string) (domain.Result, error) {
	req, err := readRenditionRequest(r)
	if err != nil {
		return domain.Result{}, err
	}
	width, err := parseWidth(req.Width.String())
	if err != nil {
		return domain.Result{}, err
	}
	format, err := parseFormat(req.Format)
	if err != nil {
		return domain.Result{}, err
	}
	return h.service.AddImageRendition(r.Context(), userID, r.PathValue("bridgeID"), r.PathValue("assetID"), width, format)
}

func (h *handler) deleteImage(r *http.Request, userID string) (domain.Result, error) {
	return h.service.DeleteImage(r.Context(), userID, r.PathValue("bridgeID"), r.PathValue("assetID"))
}

// readUpload reads one multipart file field. The declared media type comes
// from the part header.
func (h *handler) readUpload(r *http.Request, field string) (domain.Upload, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Upload{}, invalidArgument(field, "file is too large", err)
		}
		return domain.Upload{}, invalidArgument(field, "multipart form expected", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(field)
	if err != nil {
		return domain.Upload{}, invalidArgument(field, "file is required", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Upload{}, invalidArgument(field, "file could not be read", err)
	}
	return domain.Upload{Data: data, MIMEType: header.Header.Get("Content-Type")}, nil
}

func readRenditionRequest(r *http.Request) (renditionRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req renditionRequest
		decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
		decoder.UseNumber()
		if err := decoder.Decode(&req); err != nil {
			return renditionRequest{}, invalidArgument("body", "malformed JSON", err)
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return renditionRequest{}, invalidArgument("body", "malformed form", err)
	}
	return renditionRequest{
		Width:  json.Number(r.PostForm.Get("width")),
		Format: r.PostForm.Get("format"),
	}, nil
}

func parseWidth(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalidArgument("width", "is required", nil)
	}
	width, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidArgument("width", "must be an integer", err)
	}
	if width < 1 || width > MaxRenditionWidth {
		return 0, invalidArgument("width", "must be between 1 and "+strconv.Itoa(MaxRenditionWidth), nil)
	}
	return width, nil
}

func parseFormat(raw string) (codec.Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "png":
		return codec.FormatPNG, nil
	case "jpg":
		return codec.FormatJPEG, nil
	default:
		return "", invalidArgument("format", "must be jpg or png", nil)
	}
}

func invalidArgument(field, reason string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeInvalidArgument, "invalid "+field, map[string]string{
		"Field":  field,
		"Reason": reason,
	}, cause)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	if !code.UserFacing() {
		log.Printf("assets: %s %s failed user=%q code=%s err=%v", r.Method, r.URL.Path, requestctx.UserIDFromContext(r.Context()), code, err)
	}
	locale := requestctx.LocaleFromContext(r.Context())
	writeJSON(w, code.HTTPStatus(), render.Error{Error: apperrors.UserMessage(err, locale)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("assets: encode response: %v", err)
	}
}
