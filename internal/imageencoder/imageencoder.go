package imageencoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/nfnt/resize"
)

const (
	// DefaultQuality is the JPEG quality used for re-encoded payloads.
	DefaultQuality = 75
	// DefaultMaxPixels caps width*height of an upload before it is decoded.
	DefaultMaxPixels = 50_000_000
)

var (
	// ErrEncoding matches every EncodingError via errors.Is.
	ErrEncoding = errors.New("image encoding failed")
	// ErrTooLarge is wrapped by an EncodingError when an upload declares more
	// pixels than allowed.
	ErrTooLarge = errors.New("image exceeds pixel limit")
)

// EncodingError reports an upload that could not be decoded or re-encoded.
type EncodingError struct {
	Stage string
	Err   error
}

func (e *EncodingError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("image %s failed: %v", e.Stage, e.Err)
}

func (e *EncodingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrEncoding) match any EncodingError.
func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

// Encoder turns raw upload bytes into the payload sent to a classifier.
type Encoder interface {
	Encode(raw []byte) ([]byte, error)
}

// Payload is an uploaded image with its detected container format.
type Payload struct {
	Data   []byte
	Format string
}

// Decode parses raw bytes as JPEG, PNG or GIF, refusing images larger than
// DefaultMaxPixels.
func Decode(raw []byte) (image.Image, Payload, error) {
	return DecodeLimited(raw, DefaultMaxPixels)
}

// DecodeLimited is Decode with an explicit pixel budget. The header is read
// first so oversized images fail before any pixel buffer is allocated.
func DecodeLimited(raw []byte, maxPixels int64) (image.Image, Payload, error) {
	if len(raw) == 0 {
		return nil, Payload{}, &EncodingError{Stage: "decode", Err: errors.New("empty upload")}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, Payload{}, &EncodingError{Stage: "decode", Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, Payload{}, &EncodingError{
			Stage: "decode",
			Err:   fmt.Errorf("%w: %dx%d is over %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels),
		}
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, Payload{}, &EncodingError{Stage: "decode", Err: err}
	}
	return img, Payload{Data: raw, Format: format}, nil
}

// ContentType sniffs the MIME type of raw image bytes.
func ContentType(raw []byte) string {
	return http.DetectContentType(raw)
}

// JPEG re-encodes uploads as baseline RGB JPEG.
type JPEG struct {
	Quality int
	// MaxDimension bounds the longer side in pixels; zero keeps the original size.
	MaxDimension uint
	// MaxPixels caps the decoded area; zero means DefaultMaxPixels.
	MaxPixels int64
}

// NewJPEG returns a JPEG encoder with the default quality and pixel limit.
func NewJPEG(maxDimension uint) *JPEG {
	return &JPEG{Quality: DefaultQuality, MaxDimension: maxDimension, MaxPixels: DefaultMaxPixels}
}

// Encode decodes raw and re-encodes it.
func (e *JPEG) Encode(raw []byte) ([]byte, error) {
	limit := e.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	img, _, err := DecodeLimited(raw, limit)
	if err != nil {
		return nil, err
	}
	return e.EncodeImage(img)
}

// EncodeImage converts img to opaque 8-bit RGB and serializes it as JPEG.
func (e *JPEG) EncodeImage(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, &EncodingError{Stage: "encode", Err: errors.New("nil image")}
	}
	if img.Bounds().Empty() {
		return nil, &EncodingError{Stage: "encode", Err: errors.New("image has no pixels")}
	}

	rgb := toRGB(img)
	var out image.Image = rgb
	if e.MaxDimension > 0 {
		b := rgb.Bounds()
		if uint(b.Dx()) > e.MaxDimension || uint(b.Dy()) > e.MaxDimension {
			out = resize.Thumbnail(e.MaxDimension, e.MaxDimension, rgb, resize.Lanczos3)
		}
	}

	quality := e.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, &EncodingError{Stage: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// toRGB drops the alpha channel without blending, so transparent pixels keep
// their stored color.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

// Passthrough forwards the upload unchanged.
type Passthrough struct{}

// Encode returns raw as-is, rejecting empty uploads.
func (Passthrough) Encode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &EncodingError{Stage: "read", Err: errors.New("empty upload")}
	}
	return raw, nil
}
