package store

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "imgkv/internal/errors"
)

// hookBackend wraps a MemoryBackend and lets a test interfere with Put.
type hookBackend struct {
	*MemoryBackend
	onPut func(ctx context.Context) error
}

func (h *hookBackend) Put(ctx context.Context, key string, v Value) error {
	if h.onPut != nil {
		if err := h.onPut(ctx); err != nil {
			return err
		}
	}
	return h.MemoryBackend.Put(ctx, key, v)
}

func newTestStores(t *testing.T) map[string]*Store {
	t.Helper()
	sqliteStore, db, err := NewSQLite()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]*Store{
		"memory": NewMemory(),
		"sqlite": sqliteStore,
	}
}

func testBitmap() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(60 * x), G: uint8(80 * y), B: 200, A: 255})
		}
	}
	return img
}

func TestStore_PutGetRaw(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "test", Raw{ContentType: "text/plain", Data: []byte("Hello World")}))

			v, err := s.Get(ctx, "test")
			require.NoError(t, err)
			raw, ok := v.(Raw)
			require.True(t, ok, "expected Raw, got %T", v)
			assert.Equal(t, "text/plain", raw.ContentType)
			assert.Equal(t, []byte("Hello World"), raw.Data)
		})
	}
}

func TestStore_EmptyPayloadRoundTrips(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "empty", Raw{ContentType: "application/octet-stream"}))

			v, err := s.Get(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, v.(Raw).Data)
		})
	}
}

func TestStore_PutGetImagePreservesPixels(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := testBitmap()
			require.NoError(t, s.Put(ctx, "img", Image{Bitmap: src, SourceFormat: "png"}))

			v, err := s.Get(ctx, "img")
			require.NoError(t, err)
			img, ok := v.(Image)
			require.True(t, ok, "expected Image, got %T", v)
			assert.Equal(t, "png", img.SourceFormat)
			require.Equal(t, src.Bounds(), img.Bitmap.Bounds())
			for y := 0; y < 3; y++ {
				for x := 0; x < 4; x++ {
					assert.Equal(t, src.NRGBAAt(x, y), color.NRGBAModel.Convert(img.Bitmap.At(x, y)))
				}
			}
		})
	}
}

func TestStore_OverwriteReplacesVariant(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "k", Image{Bitmap: testBitmap(), SourceFormat: "png"}))
			require.NoError(t, s.Put(ctx, "k", Raw{ContentType: "text/plain", Data: []byte("now raw")}))

			v, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, KindRaw, v.Kind())

			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{Raw: 1}, st)
		})
	}
}

func TestStore_GetMissingIsNotFound(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "", Raw{}), apperrors.ErrInvalidKey)
	_, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)
	_, err = s.Delete(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "k", Raw{Data: []byte("v")}))

			existed, err := s.Delete(ctx, "k")
			require.NoError(t, err)
			assert.True(t, existed)

			existed, err = s.Delete(ctx, "k")
			require.NoError(t, err)
			assert.False(t, existed)

			_, err = s.Get(ctx, "k")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestStore_Clear(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "a", Raw{Data: []byte("1")}))
			require.NoError(t, s.Put(ctx, "b", Image{Bitmap: testBitmap()}))

			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, s.Clear(ctx))
			n, err = s.Len(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_RawIsCopiedInAndOut(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", Raw{Data: data}))
	data[0] = 'X'

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	got := v.(Raw)
	assert.Equal(t, []byte("abc"), got.Data)
	got.Data[1] = 'Y'

	v, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v.(Raw).Data)
}

func TestStore_CancelledBeforeAcquireDoesNotMutate(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, "k", Raw{Data: []byte("v")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Poisoned())

	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_PanicDuringWritePoisons(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", Raw{Data: []byte("v")}))

	err := s.Poison(ctx, "at the disco")
	require.ErrorIs(t, err, apperrors.ErrLockPoisoned)
	assert.Contains(t, err.Error(), "at the disco")
	assert.True(t, s.Poisoned())

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrLockPoisoned)
	assert.ErrorIs(t, s.Put(ctx, "k", Raw{}), apperrors.ErrLockPoisoned)
	_, err = s.Delete(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrLockPoisoned)
	assert.ErrorIs(t, s.Clear(ctx), apperrors.ErrLockPoisoned)
	_, err = s.Stats(ctx)
	assert.ErrorIs(t, err, apperrors.ErrLockPoisoned)
}

func TestStore_CancelInsideCriticalSectionPoisons(t *testing.T) {
	backend := &hookBackend{MemoryBackend: NewMemoryBackend()}
	s := New(backend)
	ctx, cancel := context.WithCancel(context.Background())
	backend.onPut = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}

	err := s.Put(ctx, "k", Raw{Data: []byte("v")})
	require.ErrorIs(t, err, apperrors.ErrLockPoisoned)

	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, apperrors.ErrLockPoisoned)
}

func TestStore_CancelledWhileWaitingDoesNotPoison(t *testing.T) {
	backend := &hookBackend{MemoryBackend: NewMemoryBackend()}
	s := New(backend)

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.onPut = func(context.Context) error {
		backend.onPut = nil
		close(entered)
		<-release
		return nil
	}

	holderDone := make(chan error, 1)
	go func() {
		holderDone <- s.Put(context.Background(), "first", Raw{Data: []byte("1")})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- s.Put(ctx, "second", Raw{Data: []byte("2")})
	}()
	// Give the waiter time to block on the held lock.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	require.NoError(t, <-holderDone)
	assert.ErrorIs(t, <-waiterDone, context.Canceled)
	assert.False(t, s.Poisoned())

	_, err := s.Get(context.Background(), "second")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.Get(context.Background(), "first")
	assert.NoError(t, err)
}

func TestStore_NilValueRejected(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, v := range []Value{nil, (*Raw)(nil), (*Image)(nil)} {
				err := s.Put(ctx, "k", v)
				assert.ErrorIs(t, err, apperrors.ErrBadRequest)
			}
			assert.False(t, s.Poisoned())
			_, err := s.Get(ctx, "k")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestStore_BackendErrorWithoutCancelDoesNotPoison(t *testing.T) {
	backend := &hookBackend{MemoryBackend: NewMemoryBackend()}
	s := New(backend)
	failing := assert.AnError
	backend.onPut = func(context.Context) error { return failing }

	err := s.Put(context.Background(), "k", Raw{Data: []byte("v")})
	assert.ErrorIs(t, err, failing)
	assert.False(t, s.Poisoned())
}

func TestStore_ConcurrentReadersSeeIdenticalBytes(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	want := bytes.Repeat([]byte("kv"), 4096)
	require.NoError(t, s.Put(ctx, "k", Raw{Data: want}))

	const readers = 64
	var wg sync.WaitGroup
	results := make([][]byte, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Get(ctx, "k")
			errs[i] = err
			if err == nil {
				results[i] = v.(Raw).Data
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, want, results[i])
	}
}

func TestStore_WriterNeverTearsReaders(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			oldVal := bytes.Repeat([]byte{'a'}, 2048)
			newVal := bytes.Repeat([]byte{'b'}, 4096)
			require.NoError(t, s.Put(ctx, "k", Raw{ContentType: "a", Data: oldVal}))

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					if i%2 == 0 {
						_ = s.Put(ctx, "k", Raw{ContentType: "b", Data: newVal})
					} else {
						_ = s.Put(ctx, "k", Raw{ContentType: "a", Data: oldVal})
					}
				}
			}()

			torn := make(chan string, 8)
			for r := 0; r < 8; r++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 200; i++ {
						v, err := s.Get(ctx, "k")
						if err != nil {
							torn <- err.Error()
							return
						}
						raw := v.(Raw)
						switch raw.ContentType {
						case "a":
							if !bytes.Equal(raw.Data, oldVal) {
								torn <- "old content type with new bytes"
								return
							}
						case "b":
							if !bytes.Equal(raw.Data, newVal) {
								torn <- "new content type with old bytes"
								return
							}
						default:
							torn <- "unexpected content type " + raw.ContentType
							return
						}
					}
				}()
			}
			wg.Wait()
			close(torn)
			for msg := range torn {
				t.Error(msg)
			}
		})
	}
}
