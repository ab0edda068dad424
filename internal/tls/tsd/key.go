package tsd

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

const (
	// KeysMax is the number of keys that may exist at the same time.
	KeysMax = 1024

	// DestructorIterations bounds the destructor passes run on thread exit.
	DestructorIterations = 4

	blockSize = 32
	numBlocks = KeysMax / blockSize
)

var (
	// ErrKeysExhausted is returned by Create when all KeysMax keys are in use.
	ErrKeysExhausted = errors.New("tsd: no more thread-specific data keys available")

	// ErrInvalidKey is returned for keys that were never created or were deleted.
	ErrInvalidKey = errors.New("tsd: invalid key")

	// ErrIncompleteScan is returned by Reap when the goroutine dump did not
	// fit in memory.
	ErrIncompleteScan = errors.New("tsd: goroutine dump truncated")
)

// Destructor releases a value stored under a key when its thread exits.
// It is called with the non-nil value the thread last stored.
type Destructor func(value any)

// Key names one slot in every thread's table.
//
// The zero Key is never valid.
type Key struct {
	index uint32
	seq   uint64
}

// keyState is the immutable description of a live key.
type keyState struct {
	seq  uint64
	dtor Destructor
}

// keyTable is the process-wide key registry.
//
// seq, free and inUse are guarded by mu. live is read without the lock.
type keyTable struct {
	mu    sync.Mutex
	seq   [KeysMax]uint64
	live  [KeysMax]atomic.Pointer[keyState]
	free  *queue.Queue
	inUse int
}

var keys = newKeyTable()

func newKeyTable() *keyTable {
	kt := &keyTable{free: queue.New()}
	// Free indices are handed out FIFO, so a fresh table allocates 0, 1, 2...
	for i := range KeysMax {
		kt.free.Add(uint32(i))
	}
	return kt
}

// Create registers a new key. d may be nil.
//
// The key's value is nil for every thread until that thread calls Set.
func Create(d Destructor) (Key, error) {
	keys.mu.Lock()
	defer keys.mu.Unlock()

	if keys.free.Length() == 0 {
		return Key{}, ErrKeysExhausted
	}
	//nolint:forcetypeassert // the queue only ever holds uint32
	index := keys.free.Remove().(uint32)

	keys.seq[index]++
	k := Key{index: index, seq: keys.seq[index]}
	keys.live[index].Store(&keyState{seq: k.seq, dtor: d})
	keys.inUse++
	return k, nil
}

// Delete unregisters k.
//
// Values still stored under k are not passed to its destructor; they become
// unreachable and are dropped when their thread exits.
func Delete(k Key) error {
	keys.mu.Lock()
	defer keys.mu.Unlock()

	if !k.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidKey, k)
	}
	keys.live[k.index].Store(nil)
	keys.free.Add(k.index)
	keys.inUse--
	return nil
}

// KeysInUse reports how many keys currently exist.
func KeysInUse() int {
	keys.mu.Lock()
	defer keys.mu.Unlock()
	return keys.inUse
}

// Get returns the calling thread's value for k, or nil if it has none or k
// is not a live key.
func (k Key) Get() any {
	if !k.valid() {
		return nil
	}
	return Self().get(k)
}

// Set stores v as the calling thread's value for k. A nil v clears the slot.
func (k Key) Set(v any) error {
	if !k.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidKey, k)
	}
	Self().set(k, v)
	return nil
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return fmt.Sprintf("key(%d#%d)", k.index, k.seq)
}

func (k Key) valid() bool {
	if k.seq == 0 || k.index >= KeysMax {
		return false
	}
	st := keys.live[k.index].Load()
	return st != nil && st.seq == k.seq
}

// destructorFor returns the destructor to run for a value stored at index
// under sequence seq, or nil if that key no longer exists or has none.
func destructorFor(index int, seq uint64) Destructor {
	st := keys.live[index].Load()
	if st == nil || st.seq != seq {
		return nil
	}
	return st.dtor
}
