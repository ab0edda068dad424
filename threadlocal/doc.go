// Package threadlocal provides thread-local storage for goroutines.
//
// A Cell gives every goroutine its own lazily initialised value:
//
//	var counter = threadlocal.New(func() int { return 0 })
//
//	func increment() {
//	    counter.With(func(n *int) { *n++ })
//	}
//
// The first With call on a goroutine runs the initializer for that goroutine
// only. Later calls on the same goroutine see the same value; other goroutines
// never see it.
//
// # Backends
//
// A Cell stores its values in one of three backends, selected with
// WithBackend and constructed on the first With call:
//
//   - KindNative (default): thread-specific data keys with a destructor. A
//     goroutine's value is released when the goroutine exits, provided the
//     goroutine was started with Go, or later by Reap otherwise.
//   - KindFallback: one process-wide map behind one mutex. Values are never
//     released; the map keeps an entry for every goroutine that ever used a
//     fallback cell. The function passed to With runs with that mutex held.
//   - KindSharded: the fallback map split into independently locked shards.
//
// # Threads
//
// Go reports no goroutine exit, so release on exit needs cooperation. Go
// starts a goroutine that releases its values when its function returns or
// panics, before Join returns. Goroutines started with a plain go statement
// keep their values until Reap notices they are gone.
//
// # Errors
//
// Failures of the primitive itself are not recoverable by design and are
// raised as panics carrying an error: ErrKeysExhausted, ErrTypeMismatch,
// ErrPoisoned (as *PoisonError) and ErrClosed. They can be matched with
// errors.Is after recover.
package threadlocal
