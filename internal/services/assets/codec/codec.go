// Package codec decodes, rasterizes, resizes, and re-encodes asset blobs.
//
// SVG documents are rasterized with oksvg/rasterx; raster images are decoded,
// resampled with a Lanczos filter, and encoded with disintegration/imaging.
// All work runs under a bounded worker semaphore because it is CPU bound.
package codec

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrUnsupportedFormat indicates a format the requested operation cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrDecode indicates the input blob could not be parsed.
	ErrDecode = errors.New("decode failed")
	// ErrGeometry indicates non-positive or oversized dimensions.
	ErrGeometry = errors.New("invalid geometry")
)

const (
	// MaxDimension bounds either side of any decoded or produced raster.
	MaxDimension = 16384
	// maxPixels bounds the total pixel count of a decoded raster.
	maxPixels          = 64 << 20
	defaultJPEGQuality = 90
)

// Raster is an encoded raster blob together with the dimensions it was
// actually produced at.
type Raster struct {
	Data   []byte
	Format Format
	Width  int
	Height int
}

// Normalized is the canonical form of an upload.
type Normalized struct {
	// Canonical is the authoritative blob to store for the source asset.
	Canonical []byte
	// Width and Height are the dimensions of the normalized decode.
	Width  int
	Height int
	// FullSize is a raster at native resolution used to seed the first
	// rendition.
	FullSize Raster
}

// Option configures a Codec.
type Option func(*Codec)

// WithJPEGQuality sets the quality used for JPEG output.
func WithJPEGQuality(quality int) Option {
	return func(c *Codec) {
		if quality > 0 && quality <= 100 {
			c.jpegQuality = quality
		}
	}
}

// Codec performs image work with at most workers concurrent operations.
type Codec struct {
	sem         *semaphore.Weighted
	jpegQuality int
}

// New returns a codec with workers concurrent slots. A non-positive value
// uses GOMAXPROCS.
func New(workers int, opts ...Option) *Codec {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	c := &Codec{
		sem:         semaphore.NewWeighted(int64(workers)),
		jpegQuality: defaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalize decodes data as source and produces its canonical form.
//
// SVG input is kept byte for byte as the canonical blob and rasterized to a
// PNG at native size. Raster input is painted onto a transparent canvas and
// re-encoded in its own format at native size; the same encoding seeds the
// full-size rendition.
func (c *Codec) Normalize(ctx context.Context, data []byte, source Format) (Normalized, error) {
	if err := c.acquire(ctx); err != nil {
		return Normalized{}, err
	}
	defer c.sem.Release(1)

	switch source {
	case FormatSVG:
		icon, width, height, err := parseSVG(data)
		if err != nil {
			return Normalized{}, err
		}
		encoded, err := c.encode(rasterizeSVG(icon, width, height), FormatPNG)
		if err != nil {
			return Normalized{}, err
		}
		return Normalized{
			Canonical: data,
			Width:     width,
			Height:    height,
			FullSize:  Raster{Data: encoded, Format: FormatPNG, Width: width, Height: height},
		}, nil
	case FormatPNG, FormatJPEG:
		img, err := decodeRaster(data)
		if err != nil {
			return Normalized{}, err
		}
		bounds := img.Bounds()
		canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.Transparent)
		canvas = imaging.Paste(canvas, img, image.Pt(0, 0))
		encoded, err := c.encode(canvas, source)
		if err != nil {
			return Normalized{}, err
		}
		width, height := canvas.Bounds().Dx(), canvas.Bounds().Dy()
		return Normalized{
			Canonical: encoded,
			Width:     width,
			Height:    height,
			FullSize:  Raster{Data: encoded, Format: source, Width: width, Height: height},
		}, nil
	default:
		return Normalized{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, source)
	}
}

// Resize decodes data as source and produces a width x height raster in
// target format. Callers derive height from the source aspect ratio.
func (c *Codec) Resize(ctx context.Context, data []byte, source Format, width, height int, target Format) (Raster, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return Raster{}, fmt.Errorf("%w: %dx%d", ErrGeometry, width, height)
	}
	if target != FormatPNG && target != FormatJPEG {
		return Raster{}, fmt.Errorf("%w: rendition format %q", ErrUnsupportedFormat, target)
	}
	if err := c.acquire(ctx); err != nil {
		return Raster{}, err
	}
	defer c.sem.Release(1)

	var resized image.Image
	switch source {
	case FormatSVG:
		icon, _, _, err := parseSVG(data)
		if err != nil {
			return Raster{}, err
		}
		resized = rasterizeSVG(icon, width, height)
	case FormatPNG, FormatJPEG:
		img, err := decodeRaster(data)
		if err != nil {
			return Raster{}, err
		}
		resized = imaging.Resize(img, width, height, imaging.Lanczos)
	default:
		return Raster{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, source)
	}

	encoded, err := c.encode(resized, target)
	if err != nil {
		return Raster{}, err
	}
	bounds := resized.Bounds()
	return Raster{Data: encoded, Format: target, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

func (c *Codec) acquire(ctx context.Context) error {
	if c == nil || c.sem == nil {
		return fmt.Errorf("codec is not configured")
	}
	return c.sem.Acquire(ctx, 1)
}

func (c *Codec) encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatJPEG:
		// JPEG has no alpha channel.
		bounds := img.Bounds()
		flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
		flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)
		if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(c.jpegQuality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: encode %q", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}

func decodeRaster(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	bounds := img.Bounds()
	if err := checkDimensions(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}
	return img, nil
}

func parseSVG(data []byte) (*oksvg.SvgIcon, int, int, error) {
	declared, err := readSVGRoot(data)
	if err != nil {
		return nil, 0, 0, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	width, height := nativeSize(declared, icon.ViewBox.W, icon.ViewBox.H)
	if err := checkDimensions(width, height); err != nil {
		return nil, 0, 0, err
	}
	return icon, width, height, nil
}

// svgSize holds the width and height declared on the root element; zero
// means absent or not expressed in user units.
type svgSize struct {
	width  float64
	height float64
}

// nativeSize prefers the declared root size and falls back to the viewBox.
// A single declared side keeps the viewBox aspect ratio.
func nativeSize(declared svgSize, viewW, viewH float64) (int, int) {
	width, height := declared.width, declared.height
	switch {
	case width > 0 && height > 0:
	case width > 0 && viewW > 0 && viewH > 0:
		height = width * viewH / viewW
	case height > 0 && viewW > 0 && viewH > 0:
		width = height * viewW / viewH
	default:
		width, height = viewW, viewH
	}
	return int(math.Round(width)), int(math.Round(height))
}

func readSVGRoot(data []byte) (svgSize, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return svgSize{}, fmt.Errorf("%w: no svg element", ErrDecode)
		}
		if err != nil {
			return svgSize{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return svgSize{}, fmt.Errorf("%w: root element %q", ErrDecode, start.Name.Local)
		}
		var size svgSize
		for _, attr := range start.Attr {
			if attr.Name.Space != "" {
				continue
			}
			switch attr.Name.Local {
			case "width":
				size.width = parseSVGLength(attr.Value)
			case "height":
				size.height = parseSVGLength(attr.Value)
			}
		}
		return size, nil
	}
}

// parseSVGLength reads a unitless or px length. Percentages and other units
// return zero.
func parseSVGLength(value string) float64 {
	value = strings.TrimSuffix(strings.TrimSpace(value), "px")
	length, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || length <= 0 || math.IsInf(length, 0) {
		return 0
	}
	return length
}

// rasterizeSVG draws icon into a width x height canvas, scaling the viewBox
// uniformly and centering it.
func rasterizeSVG(icon *oksvg.SvgIcon, width, height int) *image.RGBA {
	x, y, w, h := 0.0, 0.0, float64(width), float64(height)
	if viewW, viewH := icon.ViewBox.W, icon.ViewBox.H; viewW > 0 && viewH > 0 {
		scale := math.Min(w/viewW, h/viewH)
		x, y = (w-viewW*scale)/2, (h-viewH*scale)/2
		w, h = viewW*scale, viewH*scale
	}
	icon.SetTarget(x, y, w, h)
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)
	return canvas
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrGeometry, width, height)
	}
	if width > MaxDimension || height > MaxDimension || width*height > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds limits", ErrGeometry, width, height)
	}
	return nil
}
