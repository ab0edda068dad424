// Package backend implements the storage strategies behind a thread-local
// cell.
//
// Every backend offers the same get-or-init contract: the first With call on
// a thread runs the initializer once and stores the result for that thread;
// later calls on the same thread see the stored value. Backends differ in
// where the value lives and whether it is released when the thread exits:
//
//   - Native keeps values in thread-specific data (package tsd) and releases
//     them through a key destructor on thread exit.
//   - Fallback keeps values in one process-wide map behind one mutex and
//     never releases them.
//   - Sharded is Fallback split across independently locked shards.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kolkov/threadlocal/internal/tls/telemetry"
)

// Kind selects a backend.
type Kind int

// Backend kinds.
const (
	KindNative Kind = iota
	KindFallback
	KindSharded
)

var kindNames = [...]string{
	KindNative:   "native",
	KindFallback: "fallback",
	KindSharded:  "sharded",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses a backend name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ErrUnknownKind is returned by ParseKind for unrecognised names.
var ErrUnknownKind = errors.New("backend: unknown kind")

// Backend is one storage strategy for a cell holding values of type T.
type Backend[T any] interface {
	// With calls fn with the calling thread's value, initialising it first
	// if this thread has none. fn must not retain the pointer.
	With(fn func(v *T))

	// Kind reports which strategy this is.
	Kind() Kind
}

// Config carries what every backend needs.
type Config[T any] struct {
	// Init produces a thread's first value. Required.
	Init func() T

	// Destructor is called with a thread's value when the native backend
	// releases it. Ignored by the other backends.
	Destructor func(v *T)

	// Logger receives debug records. Nil disables logging.
	Logger *slog.Logger

	// Metrics records activity. Nil disables metrics.
	Metrics *telemetry.Recorder
}

func (c Config[T]) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// New constructs the backend of the given kind.
//
// It panics if kind is unknown or the native backend cannot obtain a key.
func New[T any](kind Kind, cfg Config[T]) Backend[T] {
	var b Backend[T]
	switch kind {
	case KindNative:
		b = NewNative(cfg)
	case KindFallback:
		b = NewFallback(cfg)
	case KindSharded:
		b = NewSharded(cfg)
	default:
		panic(fmt.Errorf("%w: %v", ErrUnknownKind, kind))
	}
	cfg.Metrics.BackendCreated(kind.String())
	return b
}
