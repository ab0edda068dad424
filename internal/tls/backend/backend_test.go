// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package backend

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kolkov/threadlocal/internal/tls/goid"
	"github.com/kolkov/threadlocal/internal/tls/tsd"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var allKinds = []Kind{KindNative, KindFallback, KindSharded}

// newCounter builds a backend of kind whose initializer counts its calls.
func newCounter(t *testing.T, kind Kind, initial uint32, inits *atomic.Int32) Backend[uint32] {
	t.Helper()
	b := New(kind, Config[uint32]{
		Init: func() uint32 {
			inits.Add(1)
			return initial
		},
	})
	if n, ok := b.(*Native[uint32]); ok {
		t.Cleanup(func() { _ = n.Close() })
	}
	return b
}

// runWorkers runs fn on n goroutines and waits for them. Each goroutine
// leaves through tsd.ExitSelf, as a managed thread does.
func runWorkers(n int, fn func(worker int)) {
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer tsd.ExitSelf()
			fn(i)
		}()
	}
	wg.Wait()
}

func read(b Backend[uint32]) uint32 {
	var v uint32
	b.With(func(p *uint32) { v = *p })
	return v
}

func TestIsolation(t *testing.T) {
	const (
		workers    = 4
		iterations = 20
		initial    = 7
	)

	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			var inits atomic.Int32
			b := newCounter(t, kind, initial, &inits)

			observed := make([]uint32, workers)
			runWorkers(workers, func(w int) {
				for range iterations {
					b.With(func(p *uint32) { *p++ })
					runtime.Gosched()
				}
				observed[w] = read(b)
			})

			for w, v := range observed {
				assert.Equal(t, uint32(initial+iterations), v, "worker %d", w)
			}
			assert.Equal(t, int32(workers), inits.Load(), "one initialisation per worker")

			// The spawning goroutine never touched the cell before.
			assert.Equal(t, uint32(initial), read(b))
			assert.Equal(t, int32(workers+1), inits.Load())
		})
	}
}

func TestSingleInitialisationPerThread(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			var inits atomic.Int32
			b := newCounter(t, kind, 0, &inits)

			for range 100 {
				b.With(func(p *uint32) { *p++ })
			}
			assert.Equal(t, uint32(100), read(b))
			assert.Equal(t, int32(1), inits.Load())
		})
	}
}

func TestCellsAreIndependent(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			var inits atomic.Int32
			a := newCounter(t, kind, 1, &inits)
			b := newCounter(t, kind, 100, &inits)

			a.With(func(p *uint32) { *p += 5 })
			assert.Equal(t, uint32(6), read(a))
			assert.Equal(t, uint32(100), read(b))
		})
	}
}

func TestNativeDestructorFiresOncePerThread(t *testing.T) {
	const workers = 6

	var reclaimed atomic.Int32
	var onWrongThread atomic.Int32
	owners := sync.Map{} // *uint32 -> goid.ID

	b := NewNative(Config[uint32]{
		Init: func() uint32 { return 0 },
		Destructor: func(p *uint32) {
			reclaimed.Add(1)
			if owner, _ := owners.Load(p); owner != goid.Current() {
				onWrongThread.Add(1)
			}
		},
	})
	t.Cleanup(func() { _ = b.Close() })

	runWorkers(workers, func(w int) {
		if w == 0 {
			return // never touches the cell: no destructor for it
		}
		b.With(func(p *uint32) {
			*p++
			owners.Store(p, goid.Current())
		})
		b.With(func(p *uint32) { *p++ })
	})

	assert.Equal(t, int32(workers-1), reclaimed.Load())
	assert.Zero(t, onWrongThread.Load(), "destructor must run on the exiting thread")
}

func TestNativeClose(t *testing.T) {
	b := NewNative(Config[int]{Init: func() int { return 1 }})
	before := tsd.KeysInUse()

	require.NoError(t, b.Close())
	assert.Equal(t, before-1, tsd.KeysInUse())
	assert.ErrorIs(t, b.Close(), ErrClosed)

	assert.PanicsWithValue(t, ErrClosed, func() {
		b.With(func(*int) {})
	})
}

func TestFallbackLeaksByDesign(t *testing.T) {
	const workers = 5

	for _, tc := range []struct {
		kind Kind
		len  func() int
	}{
		{KindFallback, FallbackLen},
		{KindSharded, ShardedLen},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			var inits atomic.Int32
			b := newCounter(t, tc.kind, 0, &inits)

			before := tc.len()
			runWorkers(workers, func(int) {
				b.With(func(p *uint32) { *p++ })
			})
			assert.Equal(t, before+workers, tc.len())

			// Thread exit and reaping do not shrink the map.
			_, err := tsd.Reap()
			require.NoError(t, err)
			assert.Equal(t, before+workers, tc.len())
		})
	}
}

func TestFallbackSharedAcrossCells(t *testing.T) {
	var inits atomic.Int32
	a := newCounter(t, KindFallback, 0, &inits)
	b := newCounter(t, KindFallback, 0, &inits)

	before := FallbackLen()
	runWorkers(1, func(int) {
		a.With(func(*uint32) {})
		b.With(func(*uint32) {})
	})
	assert.Equal(t, before+1, FallbackLen(), "one map entry per thread, not per cell")
}

func TestPoisoning(t *testing.T) {
	for _, tc := range []struct {
		kind  Kind
		clear func()
	}{
		{KindFallback, ClearFallbackPoison},
		{KindSharded, ClearShardedPoison},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			t.Cleanup(tc.clear)

			var inits atomic.Int32
			b := newCounter(t, tc.kind, 0, &inits)

			boom := errors.New("boom")
			assert.PanicsWithValue(t, boom, func() {
				b.With(func(*uint32) { panic(boom) })
			})

			r := catch(func() { b.With(func(*uint32) {}) })
			var perr *PoisonError
			require.ErrorAs(t, r, &perr)
			assert.ErrorIs(t, perr, ErrPoisoned)
			assert.Equal(t, boom, perr.Value)
			assert.Contains(t, string(perr.Stack), "TestPoisoning", "stack must reach the panicking function")

			// Poisoning persists until cleared, and the lock is still usable.
			require.ErrorIs(t, catch(func() { b.With(func(*uint32) {}) }), ErrPoisoned)
			tc.clear()
			assert.NotPanics(t, func() { b.With(func(p *uint32) { *p++ }) })
		})
	}
}

func TestPoisonedByGoexit(t *testing.T) {
	t.Cleanup(ClearFallbackPoison)

	var inits atomic.Int32
	b := newCounter(t, KindFallback, 0, &inits)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.With(func(*uint32) { runtime.Goexit() })
		t.Error("Goexit returned")
	}()
	<-done

	var perr *PoisonError
	require.ErrorAs(t, catch(func() { b.With(func(*uint32) {}) }), &perr)
	assert.ErrorIs(t, perr, ErrPoisoned)
	assert.Nil(t, perr.Value)
}

func TestPoisonedByInitializer(t *testing.T) {
	t.Cleanup(ClearFallbackPoison)

	b := NewFallback(Config[int]{Init: func() int { panic("init failed") }})
	assert.PanicsWithValue(t, "init failed", func() { b.With(func(*int) {}) })
	assert.ErrorIs(t, catch(func() { b.With(func(*int) {}) }), ErrPoisoned)
}

func TestTypeMismatchIsFatal(t *testing.T) {
	own := slots{7: "not an int"}
	err := catch(func() { getOrInit(own, 7, func() int { return 0 }) })
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "cell 7")
}

func TestNewUnknownKind(t *testing.T) {
	assert.ErrorIs(t, catch(func() { New(Kind(42), Config[int]{}) }), ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"native", KindNative, false},
		{"FALLBACK", KindFallback, false},
		{"sharded", KindSharded, false},
		{"pthread", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParseKind(got.String())))
		})
	}
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

// catch returns the error fn panics with, or nil.
func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
