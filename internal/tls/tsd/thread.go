package tsd

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/threadlocal/internal/tls/goid"
)

// entry is one stored value together with the sequence of the key that
// stored it.
type entry struct {
	seq   uint64
	value any
}

type block [blockSize]atomic.Pointer[entry]

// Thread is the control block of one goroutine.
//
// Only the owning goroutine writes values. The exit procedure may run on
// another goroutine after the owner is gone; the atomics order those accesses.
type Thread struct {
	id     goid.ID
	blocks [numBlocks]atomic.Pointer[block]
	exited atomic.Bool
}

// threads maps goid.ID to *Thread for every registered goroutine.
//
// sync.Map fits the access pattern: each key is written once by its owner
// and then read many times.
var threads sync.Map

// Self returns the calling goroutine's control block, registering one on
// first use.
func Self() *Thread {
	id := goid.Current()
	if v, ok := threads.Load(id); ok {
		return v.(*Thread) //nolint:forcetypeassert // threads only holds *Thread
	}

	// Only this goroutine ever stores under id, so Store cannot lose a race.
	t := &Thread{id: id}
	threads.Store(id, t)
	return t
}

// ID returns the goroutine the block belongs to.
func (t *Thread) ID() goid.ID {
	return t.id
}

// Exited reports whether the exit procedure has run.
func (t *Thread) Exited() bool {
	return t.exited.Load()
}

// Threads reports how many control blocks are registered.
func Threads() int {
	n := 0
	threads.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (t *Thread) get(k Key) any {
	b := t.blocks[k.index/blockSize].Load()
	if b == nil {
		return nil
	}
	e := b[k.index%blockSize].Load()
	if e == nil || e.seq != k.seq {
		return nil
	}
	return e.value
}

func (t *Thread) set(k Key, v any) {
	bi := k.index / blockSize
	b := t.blocks[bi].Load()
	if b == nil {
		if v == nil {
			return
		}
		b = new(block)
		t.blocks[bi].Store(b)
	}
	if v == nil {
		b[k.index%blockSize].Store(nil)
		return
	}
	b[k.index%blockSize].Store(&entry{seq: k.seq, value: v})
}
