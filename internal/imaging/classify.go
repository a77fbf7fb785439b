package imaging

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	apperrors "imgkv/internal/errors"
	"imgkv/internal/store"
)

// DefaultContentType is assumed when a write declares none.
const DefaultContentType = "application/octet-stream"

// IsImageType reports whether a declared content type selects the image
// branch. Only the declaration is consulted; the bytes are never sniffed.
func IsImageType(contentType string) bool {
	return strings.HasPrefix(contentType, "image")
}

// DefaultMaxPixels caps the decoded size of an accepted image. The body
// limit bounds the encoded bytes only; a small PNG can declare a bitmap of
// several hundred megabytes.
const DefaultMaxPixels int64 = 25_000_000

// Classify turns a written payload into the Value to store, using
// DefaultMaxPixels.
func Classify(contentType string, data []byte) (store.Value, error) {
	return ClassifyLimit(contentType, data, DefaultMaxPixels)
}

// ClassifyLimit is Classify with an explicit pixel ceiling. A non-positive
// maxPixels selects DefaultMaxPixels.
//
// Declared images must decode; anything that decodes is accepted whatever
// the declared subtype says. The header is checked against maxPixels before
// any pixel data is allocated. Everything else is kept verbatim.
func ClassifyLimit(contentType string, data []byte, maxPixels int64) (store.Value, error) {
	if contentType == "" {
		contentType = DefaultContentType
	}
	if !IsImageType(contentType) {
		return store.Raw{ContentType: contentType, Data: data}, nil
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedContent, apperrors.ErrUnsupportedContent.Message, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, apperrors.E(apperrors.KindPayloadTooLarge,
			fmt.Sprintf("image is %dx%d, exceeds the limit of %d pixels", cfg.Width, cfg.Height, maxPixels))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedContent, apperrors.ErrUnsupportedContent.Message, err)
	}
	return store.Image{Bitmap: img, SourceFormat: format}, nil
}
