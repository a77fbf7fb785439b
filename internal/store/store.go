package store

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	apperrors "imgkv/internal/errors"
)

// Backend holds the key to Value mapping. Implementations are not required
// to be safe for concurrent use: Store serializes access through its lock.
type Backend interface {
	Get(ctx context.Context, key string) (Value, bool, error)
	Put(ctx context.Context, key string, v Value) error
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// preparer is implemented by backends that need a value transformed before
// it is written. Store calls it before taking the exclusive lock.
type preparer interface {
	prepare(v Value) (Value, error)
}

// Stats counts stored values per variant.
type Stats struct {
	Raw    int `json:"raw"`
	Images int `json:"images"`
}

// Total returns the number of stored keys.
func (s Stats) Total() int {
	return s.Raw + s.Images
}

// Store is the concurrent key to Value map shared by every request.
// Reads run concurrently; writes are exclusive. See poisonLock for the
// failure policy.
type Store struct {
	lock    poisonLock
	backend Backend
}

// New returns a Store over the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// NewMemory returns a Store over an empty map backend.
func NewMemory() *Store {
	return New(NewMemoryBackend())
}

func validKey(key string) error {
	if key == "" {
		return apperrors.ErrInvalidKey
	}
	return nil
}

// Get returns the value stored under key or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Value, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	var out Value
	err := s.lock.read(ctx, func() error {
		v, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrNotFound
		}
		out = detach(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return materialize(out)
}

// materialize decodes images that a backend returned in serialized form.
func materialize(v Value) (Value, error) {
	img, ok := v.(Image)
	if !ok || img.Bitmap != nil {
		return v, nil
	}
	bitmap, err := png.Decode(bytes.NewReader(img.encoded))
	if err != nil {
		return nil, fmt.Errorf("decode stored image: %w", err)
	}
	img.Bitmap = bitmap
	return img, nil
}

// Put inserts or replaces the value under key.
func (s *Store) Put(ctx context.Context, key string, v Value) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := checkValue(v); err != nil {
		return err
	}
	v = detach(v)
	if p, ok := s.backend.(preparer); ok {
		var err error
		if v, err = p.prepare(v); err != nil {
			return err
		}
	}
	return s.lock.write(ctx, func(ctx context.Context) error {
		return s.backend.Put(ctx, key, v)
	})
}

// Delete removes key and reports whether it was present. Deleting an
// absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	var existed bool
	err := s.lock.write(ctx, func(ctx context.Context) error {
		var err error
		existed, err = s.backend.Delete(ctx, key)
		return err
	})
	return existed, err
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	return s.lock.write(ctx, func(ctx context.Context) error {
		return s.backend.Clear(ctx)
	})
}

// Stats returns per-variant counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := s.lock.read(ctx, func() error {
		var err error
		out, err = s.backend.Stats(ctx)
		return err
	})
	return out, err
}

// Len returns the number of stored keys.
func (s *Store) Len(ctx context.Context) (int, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.Total(), nil
}

// Poisoned reports whether a failed write has poisoned the store.
func (s *Store) Poisoned() bool {
	return s.lock.isPoisoned()
}

// Poison deliberately fails a write while holding the exclusive lock.
// It exists for diagnostics: afterwards every operation returns
// ErrLockPoisoned until the process restarts.
func (s *Store) Poison(ctx context.Context, reason string) error {
	return s.lock.write(ctx, func(context.Context) error {
		panic(reason)
	})
}
