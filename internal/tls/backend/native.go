package backend

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kolkov/threadlocal/internal/tls/tsd"
)

// Native stores each thread's value under a thread-specific data key.
//
// The hot path is two atomic loads on the caller's own control block; no
// lock is shared with other threads. Values are released by the key's
// destructor when their thread exits (see tsd.Thread.Exit).
type Native[T any] struct {
	key    tsd.Key
	cfg    Config[T]
	log    *slog.Logger
	closed atomic.Bool
}

// NewNative registers a key for a new native backend.
//
// Running out of keys is not recoverable for a cell, so NewNative panics
// with an error wrapping tsd.ErrKeysExhausted.
func NewNative[T any](cfg Config[T]) *Native[T] {
	b := &Native[T]{cfg: cfg, log: cfg.logger()}

	key, err := tsd.Create(b.reclaim)
	if err != nil {
		panic(fmt.Errorf("backend: native key: %w", err))
	}
	b.key = key

	b.log.Debug("native backend created", slog.String("key", key.String()))
	return b
}

// Kind implements Backend.
func (b *Native[T]) Kind() Kind {
	return KindNative
}

// With implements Backend.
func (b *Native[T]) With(fn func(v *T)) {
	fn(b.get())
}

func (b *Native[T]) get() *T {
	if b.closed.Load() {
		panic(ErrClosed)
	}

	if v := b.key.Get(); v != nil {
		p, ok := v.(*T)
		if !ok {
			panic(typeMismatch[T](b.key.String(), v))
		}
		return p
	}

	p := new(T)
	*p = b.cfg.Init()
	if err := b.key.Set(p); err != nil {
		panic(fmt.Errorf("%w: %w", ErrClosed, err))
	}
	b.cfg.Metrics.SlotCreated(KindNative.String())
	return p
}

// reclaim is the key destructor. It runs once per thread that stored a
// value, on that thread when it exits through tsd.ExitSelf.
func (b *Native[T]) reclaim(v any) {
	p, ok := v.(*T)
	if !ok {
		panic(typeMismatch[T](b.key.String(), v))
	}
	if b.cfg.Destructor != nil {
		b.cfg.Destructor(p)
	}
	b.cfg.Metrics.SlotReclaimed(KindNative.String())
}

// Close deletes the backend's key. Values already stored are dropped on
// thread exit without running the destructor. Later calls to With panic
// with ErrClosed.
func (b *Native[T]) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if err := tsd.Delete(b.key); err != nil {
		return fmt.Errorf("backend: close native: %w", err)
	}
	b.log.Debug("native backend closed", slog.String("key", b.key.String()))
	return nil
}
