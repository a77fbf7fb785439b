package store

import (
	"image"

	apperrors "imgkv/internal/errors"
)

// Kind names the variant held by a Value.
type Kind string

const (
	KindRaw   Kind = "raw"
	KindImage Kind = "image"
)

// Value is the closed set of things the store can hold: Raw or Image.
// Consumers dispatch through Accept so that a new variant breaks every
// Visitor implementation at compile time.
type Value interface {
	Kind() Kind
	Accept(v Visitor) error
	isValue()
}

// Visitor handles each Value variant.
type Visitor interface {
	VisitRaw(Raw) error
	VisitImage(Image) error
}

// Raw is an opaque payload stored verbatim with the content type that was
// declared when it was written.
type Raw struct {
	ContentType string
	Data        []byte
}

func (Raw) Kind() Kind               { return KindRaw }
func (r Raw) Accept(v Visitor) error { return v.VisitRaw(r) }
func (Raw) isValue()                 {}
func (r Raw) clone() Raw             { return Raw{ContentType: r.ContentType, Data: cloneBytes(r.Data)} }

// Image is a decoded bitmap. The bitmap is never mutated once stored;
// transforms always produce a new image.
type Image struct {
	Bitmap image.Image
	// SourceFormat is the format name reported by the decoder ("png",
	// "jpeg", ...). Informational only: reads always re-encode.
	SourceFormat string

	// encoded is a lossless PNG form of Bitmap, filled in by backends that
	// keep images serialized. Either field may be empty, never both.
	encoded []byte
}

func (Image) Kind() Kind               { return KindImage }
func (i Image) Accept(v Visitor) error { return v.VisitImage(i) }
func (Image) isValue()                 {}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var errNilValue = apperrors.E(apperrors.KindBadRequest, "value must not be nil")

// checkValue rejects a nil Value, including typed nil pointers.
func checkValue(v Value) error {
	switch t := v.(type) {
	case nil:
		return errNilValue
	case *Raw:
		if t == nil {
			return errNilValue
		}
	case *Image:
		if t == nil {
			return errNilValue
		}
	}
	return nil
}

// detach returns a copy of v that shares no mutable memory with the caller.
func detach(v Value) Value {
	switch t := v.(type) {
	case Raw:
		return t.clone()
	case *Raw:
		return t.clone()
	case Image:
		return t
	case *Image:
		return *t
	}
	return v
}
