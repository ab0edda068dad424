package backend

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/kolkov/threadlocal/internal/tls/goid"
)

// slots is one thread's values, keyed by cell ID. Values are boxed *T.
type slots map[uint64]any

// store is a mutex-guarded map from thread identity to that thread's slots.
//
// Entries are never removed: a thread's slots outlive the thread. The map
// only grows for the life of the process.
//
// Poisoning: if the function run under the lock panics (or calls
// runtime.Goexit), the store records the panic value and every later
// acquisition panics with that *PoisonError until clearPoison is called.
type store struct {
	mu      sync.Mutex
	poison  *PoisonError
	threads map[goid.ID]slots
}

func newStore() *store {
	return &store{threads: make(map[goid.ID]slots)}
}

// do runs fn with the lock held and the caller's slots, creating them on
// first use. The lock is released even if fn panics.
func (s *store) do(self goid.ID, fn func(slots)) {
	s.mu.Lock()
	if s.poison != nil {
		err := s.poison
		s.mu.Unlock()
		panic(err)
	}

	completed := false
	defer func() {
		if completed {
			s.mu.Unlock()
			return
		}
		// recover returns nil for runtime.Goexit; let that proceed. The
		// panicking frames are still on the stack here.
		r := recover()
		s.poison = &PoisonError{Value: r, Stack: debug.Stack()}
		s.mu.Unlock()
		if r != nil {
			panic(r)
		}
	}()

	own, ok := s.threads[self]
	if !ok {
		own = make(slots)
		s.threads[self] = own
	}
	fn(own)
	completed = true
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

func (s *store) clearPoison() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poison = nil
}

// nextCellID hands out the identities map backends key their slots by.
var nextCellID atomic.Uint64

// getOrInit returns the cell's value from own, initialising it if absent.
// created reports whether init ran.
func getOrInit[T any](own slots, cell uint64, init func() T) (p *T, created bool) {
	v, ok := own[cell]
	if !ok {
		fresh := new(T)
		*fresh = init()
		own[cell] = fresh
		return fresh, true
	}
	p, ok = v.(*T)
	if !ok {
		panic(typeMismatch[T](cellName(cell), v))
	}
	return p, false
}
