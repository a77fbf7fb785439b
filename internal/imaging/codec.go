// Package imaging classifies written payloads and renders stored images.
//
// Every image leaves the service as PNG regardless of the format it was
// written in.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	// Decoders accepted on write. png is registered by the import above.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "imgkv/internal/errors"
)

// CanonicalContentType is announced for every image response.
const CanonicalContentType = "image/png"

var errNilImage = errors.New("nil image")

// Codec encodes images to the canonical format.
type Codec struct {
	Compression png.CompressionLevel
}

// NewCodec returns a Codec using the given PNG compression level.
func NewCodec(level png.CompressionLevel) *Codec {
	return &Codec{Compression: level}
}

// ParseCompression maps a config name to a PNG compression level.
func ParseCompression(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	}
	return 0, fmt.Errorf("unknown png compression %q (want default, none, speed or best)", name)
}

// Encode renders img as PNG.
func (c *Codec) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, apperrors.Wrap(apperrors.KindEncodingFailed, "image encoding failed", errNilImage)
	}
	enc := png.Encoder{CompressionLevel: c.Compression}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncodingFailed, "image encoding failed", err)
	}
	return buf.Bytes(), nil
}

// Grayscale converts img to 8-bit luminance and renders it as PNG. The
// source image is left untouched.
func (c *Codec) Grayscale(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, apperrors.Wrap(apperrors.KindEncodingFailed, "image encoding failed", errNilImage)
	}
	return c.Encode(ToGray(img))
}

// ToGray draws img onto a new *image.Gray using color.GrayModel.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}
