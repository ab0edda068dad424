package threadlocal

import (
	"log/slog"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(slog.New(slog.DiscardHandler))
}

// SetLogger sets the logger used by Reap and by cells created without
// WithLogger. A nil l silences the package again.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	defaultLogger.Store(l)
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return defaultLogger.Load()
}
