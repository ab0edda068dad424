package threadlocal

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/kolkov/threadlocal/internal/tls/backend"
)

// Kind selects the backend of a Cell.
type Kind = backend.Kind

// Backend kinds.
const (
	KindNative   = backend.KindNative
	KindFallback = backend.KindFallback
	KindSharded  = backend.KindSharded
)

// ParseKind parses "native", "fallback" or "sharded".
func ParseKind(s string) (Kind, error) {
	return backend.ParseKind(s)
}

type config struct {
	kind          Kind
	destructor    any // func(*T), checked by New
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// Option configures a Cell.
type Option func(*config)

// WithBackend selects the backend. The default is KindNative.
func WithBackend(kind Kind) Option {
	return func(c *config) {
		c.kind = kind
	}
}

// WithDestructor registers fn to be called with a goroutine's value when
// that goroutine exits. It is called once per goroutine that used the cell,
// on that goroutine when it was started with Go.
//
// Only the native backend releases values; the others ignore fn.
func WithDestructor[T any](fn func(v *T)) Option {
	return func(c *config) {
		c.destructor = fn
	}
}

// WithLogger sets the logger for debug records. By default the logger set
// with SetLogger is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMeterProvider records metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		if mp != nil {
			c.meterProvider = mp
		}
	}
}
