// Package kv implements the store operations independent of any transport:
// write, read, grayscale read, delete and clear.
package kv

import (
	"context"
	"fmt"

	apperrors "imgkv/internal/errors"
	"imgkv/internal/imaging"
	"imgkv/internal/store"
)

// Payload is a rendered value ready to be sent to a client.
type Payload struct {
	ContentType string
	Body        []byte
}

// Service combines the store with the classifier and image codec.
type Service struct {
	Store *store.Store
	Codec *imaging.Codec

	// MaxImagePixels caps decoded images; zero means imaging.DefaultMaxPixels.
	MaxImagePixels int64
}

func NewService(s *store.Store, codec *imaging.Codec) *Service {
	return &Service{Store: s, Codec: codec}
}

// Write classifies body by its declared content type and stores it under
// key. Classification happens before the store lock is taken.
func (s *Service) Write(ctx context.Context, key, contentType string, body []byte) error {
	v, err := imaging.ClassifyLimit(contentType, body, s.MaxImagePixels)
	if err != nil {
		return err
	}
	if err := s.Store.Put(ctx, key, v); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// Read renders the stored value. Raw values come back verbatim with their
// declared content type; images are re-encoded as PNG, never transformed.
func (s *Service) Read(ctx context.Context, key string) (Payload, error) {
	v, err := s.Store.Get(ctx, key)
	if err != nil {
		return Payload{}, fmt.Errorf("read %q: %w", key, err)
	}
	r := &readRenderer{codec: s.Codec}
	if err := v.Accept(r); err != nil {
		return Payload{}, fmt.Errorf("read %q: %w", key, err)
	}
	return r.out, nil
}

// Grayscale renders the stored image as luminance PNG. Each call derives
// from the stored color bitmap.
func (s *Service) Grayscale(ctx context.Context, key string) (Payload, error) {
	v, err := s.Store.Get(ctx, key)
	if err != nil {
		return Payload{}, fmt.Errorf("grayscale %q: %w", key, err)
	}
	r := &grayRenderer{codec: s.Codec}
	if err := v.Accept(r); err != nil {
		return Payload{}, fmt.Errorf("grayscale %q: %w", key, err)
	}
	return r.out, nil
}

// Delete removes key. An absent key is reported as not found.
func (s *Service) Delete(ctx context.Context, key string) error {
	existed, err := s.Store.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if !existed {
		return fmt.Errorf("delete %q: %w", key, apperrors.ErrNotFound)
	}
	return nil
}

// Clear removes every key.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Stats reports how many values of each variant are stored.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.Store.Stats(ctx)
}

type readRenderer struct {
	codec *imaging.Codec
	out   Payload
}

func (r *readRenderer) VisitRaw(v store.Raw) error {
	r.out = Payload{ContentType: v.ContentType, Body: v.Data}
	return nil
}

func (r *readRenderer) VisitImage(v store.Image) error {
	b, err := r.codec.Encode(v.Bitmap)
	if err != nil {
		return err
	}
	r.out = Payload{ContentType: imaging.CanonicalContentType, Body: b}
	return nil
}

type grayRenderer struct {
	codec *imaging.Codec
	out   Payload
}

func (r *grayRenderer) VisitRaw(store.Raw) error {
	return apperrors.ErrUnsupportedOperation
}

func (r *grayRenderer) VisitImage(v store.Image) error {
	b, err := r.codec.Grayscale(v.Bitmap)
	if err != nil {
		return err
	}
	r.out = Payload{ContentType: imaging.CanonicalContentType, Body: b}
	return nil
}
