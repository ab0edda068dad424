package backend

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/kolkov/threadlocal/internal/tls/goid"
)

// fallbackStore is shared by every Fallback backend in the process and is
// created on first use.
var fallbackStore = sync.OnceValue(newStore)

// Fallback stores values in the process-wide fallback map.
//
// Every access from every thread to every Fallback cell takes the same
// lock, held for at most one initializer call plus the caller's function.
// Keep the work done inside With short, and do not call With on another
// Fallback cell from inside fn: the lock is not reentrant.
//
// Values are never released: the map keeps one entry per thread that ever
// touched a Fallback cell, for the life of the process.
type Fallback[T any] struct {
	id    uint64
	cfg   Config[T]
	store *store
}

// NewFallback creates a fallback backend with a fresh cell identity.
func NewFallback[T any](cfg Config[T]) *Fallback[T] {
	b := &Fallback[T]{
		id:    nextCellID.Add(1),
		cfg:   cfg,
		store: fallbackStore(),
	}
	cfg.logger().Debug("fallback backend created", slog.Uint64("cell", b.id))
	return b
}

// Kind implements Backend.
func (b *Fallback[T]) Kind() Kind {
	return KindFallback
}

// With implements Backend. fn runs with the global lock held.
func (b *Fallback[T]) With(fn func(v *T)) {
	self := goid.Current()
	b.store.do(self, func(own slots) {
		p, created := getOrInit(own, b.id, b.cfg.Init)
		if created {
			b.cfg.Metrics.SlotCreated(KindFallback.String())
		}
		fn(p)
	})
}

// FallbackLen reports how many threads have entries in the fallback map.
func FallbackLen() int {
	return fallbackStore().len()
}

// ClearFallbackPoison makes the fallback map usable again after a panic
// poisoned it.
func ClearFallbackPoison() {
	fallbackStore().clearPoison()
}

func cellName(id uint64) string {
	return "cell " + strconv.FormatUint(id, 10)
}
