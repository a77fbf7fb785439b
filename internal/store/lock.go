package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	apperrors "imgkv/internal/errors"
)

// poisonLock is a reader/writer lock that remembers an incomplete write.
//
// Once poisoned it stays poisoned: every later acquisition, read or write,
// fails with ErrLockPoisoned. The flag is set while the exclusive lock is
// still held, so no reader can slip in between the failure and the flag.
type poisonLock struct {
	mu       sync.RWMutex
	poisoned atomic.Bool
	reason   atomic.Pointer[string]
}

func (l *poisonLock) isPoisoned() bool {
	return l.poisoned.Load()
}

func (l *poisonLock) poisonedErr() error {
	if r := l.reason.Load(); r != nil {
		return apperrors.Wrap(apperrors.KindLockPoisoned, apperrors.ErrLockPoisoned.Message, errors.New(*r))
	}
	return apperrors.ErrLockPoisoned
}

func (l *poisonLock) poison(reason string) {
	l.reason.CompareAndSwap(nil, &reason)
	l.poisoned.Store(true)
}

// read runs fn under shared access.
func (l *poisonLock) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isPoisoned() {
		return l.poisonedErr()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.isPoisoned() {
		return l.poisonedErr()
	}
	return fn()
}

// write runs fn under exclusive access.
//
// A context cancelled before fn starts, including while waiting for the
// lock, aborts with no mutation and leaves the lock healthy. A panic inside
// fn, or fn failing after ctx was cancelled, poisons the lock: the
// mutation may be half applied.
func (l *poisonLock) write(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isPoisoned() {
		return l.poisonedErr()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isPoisoned() {
		return l.poisonedErr()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			l.poison(fmt.Sprintf("panic during write: %v", r))
			err = l.poisonedErr()
		}
	}()

	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			l.poison(fmt.Sprintf("write interrupted: %v", err))
			return l.poisonedErr()
		}
		return err
	}
	return nil
}
