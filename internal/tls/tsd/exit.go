package tsd

import (
	"github.com/kolkov/threadlocal/internal/tls/goid"
)

// Exit runs the exit procedure for t and unregisters it.
//
// Every value whose key is still live is cleared and passed to that key's
// destructor. Destructors may store new values (through the owner's keys when
// Exit runs on the owner); those are handled by another pass, up to
// DestructorIterations passes in total. Values left after the last pass are
// dropped without a destructor.
//
// Exit returns false if the procedure already ran for t.
func (t *Thread) Exit() bool {
	if !t.exited.CompareAndSwap(false, true) {
		return false
	}

	for range DestructorIterations {
		if t.destroyPass() == 0 {
			break
		}
	}
	t.clear()

	threads.CompareAndDelete(t.id, t)
	return true
}

// ExitSelf runs the exit procedure for the calling goroutine if it has a
// control block. It reports whether a block was exited.
func ExitSelf() bool {
	v, ok := threads.Load(goid.Current())
	if !ok {
		return false
	}
	return v.(*Thread).Exit() //nolint:forcetypeassert // threads only holds *Thread
}

// destroyPass clears every slot and runs the destructors of live keys.
// It returns the number of non-empty slots it found.
func (t *Thread) destroyPass() int {
	found := 0
	for bi := range t.blocks {
		b := t.blocks[bi].Load()
		if b == nil {
			continue
		}
		for si := range b {
			e := b[si].Swap(nil)
			if e == nil {
				continue
			}
			found++
			if dtor := destructorFor(bi*blockSize+si, e.seq); dtor != nil {
				dtor(e.value)
			}
		}
	}
	return found
}

func (t *Thread) clear() {
	for bi := range t.blocks {
		t.blocks[bi].Store(nil)
	}
}

// liveGoroutines reports the goroutines alive right now and whether that
// report is complete.
var liveGoroutines = goid.Live

// Reap runs the exit procedure for every registered control block whose
// goroutine is no longer alive and returns how many it exited.
//
// Destructors run on the calling goroutine. A destructor that stores a value
// under any key therefore stores it in the caller's control block, not in
// the dead goroutine's.
//
// Control blocks registered after Reap starts are never considered, so a
// goroutine that appears between the snapshot and the stack dump is safe.
// If the dump of live goroutines is truncated, Reap exits nothing and
// returns ErrIncompleteScan: a goroutine missing from a partial dump may
// still be running.
func Reap() (int, error) {
	var candidates []*Thread
	threads.Range(func(_, v any) bool {
		candidates = append(candidates, v.(*Thread)) //nolint:forcetypeassert // threads only holds *Thread
		return true
	})
	if len(candidates) == 0 {
		return 0, nil
	}

	live, complete := liveGoroutines()
	if !complete {
		return 0, ErrIncompleteScan
	}
	reaped := 0
	for _, t := range candidates {
		if _, alive := live[t.id]; alive {
			continue
		}
		if t.Exit() {
			reaped++
		}
	}
	return reaped, nil
}
