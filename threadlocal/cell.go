package threadlocal

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kolkov/threadlocal/internal/tls/backend"
	"github.com/kolkov/threadlocal/internal/tls/telemetry"
)

// Cell holds one independent value of type T per goroutine.
//
// A Cell is safe for concurrent use. Create it with New; the zero Cell is
// not usable.
type Cell[T any] struct {
	kind    Kind
	built   atomic.Bool
	backend func() backend.Backend[T]
}

// New returns a Cell whose goroutines start from init(). A nil init starts
// every goroutine from the zero value of T.
//
// New allocates no per-goroutine or global storage; the backend is built by
// the first call to With. New panics with ErrTypeMismatch if a destructor
// registered with WithDestructor is not a func(*T).
func New[T any](init func() T, opts ...Option) *Cell[T] {
	cfg := config{kind: KindNative}
	for _, opt := range opts {
		opt(&cfg)
	}

	if init == nil {
		init = func() T {
			var zero T
			return zero
		}
	}

	var dtor func(*T)
	if cfg.destructor != nil {
		fn, ok := cfg.destructor.(func(*T))
		if !ok {
			panic(fmt.Errorf("%w: destructor is %T, want %T", ErrTypeMismatch, cfg.destructor, dtor))
		}
		dtor = fn
	}

	c := &Cell[T]{kind: cfg.kind}
	c.backend = sync.OnceValue(func() backend.Backend[T] {
		logger := cfg.logger
		if logger == nil {
			logger = Logger()
		}
		metrics := telemetry.Default()
		if cfg.meterProvider != nil {
			r, err := telemetry.New(cfg.meterProvider)
			if err != nil {
				logger.Warn("metrics disabled", slog.Any("error", err))
			}
			metrics = r
		}
		b := backend.New(cfg.kind, backend.Config[T]{
			Init:       init,
			Destructor: dtor,
			Logger:     logger,
			Metrics:    metrics,
		})
		c.built.Store(true)
		return b
	})
	return c
}

// With calls fn with the calling goroutine's value, initialising it first
// if this goroutine has none. fn must not let the pointer escape.
//
// The first call from any goroutine builds the backend; concurrent first
// callers all use the one backend built. If building panics (for example
// with ErrKeysExhausted), every call panics with the same value.
func (c *Cell[T]) With(fn func(v *T)) {
	c.backend().With(fn)
}

// Backend reports the kind of backend the cell uses.
func (c *Cell[T]) Backend() Kind {
	return c.kind
}

// Close releases the cell's thread-specific data key. It applies to native
// cells whose backend has been built; for any other cell it returns nil.
// Values still held by live goroutines are dropped at their exit without
// running the destructor. With panics with ErrClosed afterwards.
func (c *Cell[T]) Close() error {
	if c.kind != KindNative || !c.built.Load() {
		return nil
	}
	if closer, ok := c.backend().(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// With calls fn with the calling goroutine's value in c and returns fn's
// result. It is the generic form of Cell.With.
func With[T, R any](c *Cell[T], fn func(v *T) R) R {
	var r R
	c.With(func(v *T) {
		r = fn(v)
	})
	return r
}
