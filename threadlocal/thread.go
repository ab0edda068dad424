package threadlocal

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"

	"github.com/kolkov/threadlocal/internal/tls/backend"
	"github.com/kolkov/threadlocal/internal/tls/goid"
	"github.com/kolkov/threadlocal/internal/tls/tsd"
)

// Thread is a goroutine started with Go.
type Thread struct {
	id    goid.ID
	osTID int
	done  chan struct{}
	err   error
}

type threadConfig struct {
	pinned bool
	cpu    int
}

// ThreadOption configures a Thread.
type ThreadOption func(*threadConfig)

// Pinned locks the goroutine to its OS thread for its whole life. The lock
// is never released, so the runtime terminates the OS thread when the
// goroutine exits.
func Pinned() ThreadOption {
	return func(c *threadConfig) {
		c.pinned = true
	}
}

// OnCPU pins the goroutine's OS thread to one CPU. It implies Pinned and is
// supported on Linux only; elsewhere Join reports errors.ErrUnsupported and
// fn does not run.
func OnCPU(cpu int) ThreadOption {
	return func(c *threadConfig) {
		c.pinned = true
		c.cpu = cpu
	}
}

// Go runs fn on a new goroutine. When fn returns or panics, the goroutine's
// thread-local values are released (running cell destructors on that
// goroutine) before Join returns.
func Go(fn func(), opts ...ThreadOption) *Thread {
	cfg := threadConfig{cpu: -1}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Thread{done: make(chan struct{})}
	started := make(chan struct{})
	go t.run(fn, cfg, started)
	<-started
	return t
}

func (t *Thread) run(fn func(), cfg threadConfig, started chan<- struct{}) {
	defer close(t.done)

	t.id = goid.Current()
	if cfg.pinned {
		// Deliberately never unlocked.
		runtime.LockOSThread()
		t.osTID = osThreadID()
	}
	close(started)

	if cfg.cpu >= 0 {
		if err := setAffinity(cfg.cpu); err != nil {
			t.err = fmt.Errorf("threadlocal: pin thread %d to cpu %d: %w", t.id, cfg.cpu, err)
			return
		}
	}

	defer func() {
		if r := recover(); r != nil {
			t.err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		tsd.ExitSelf()
	}()
	fn()
}

// Join waits for the thread to finish. It returns a *PanicError if fn
// panicked.
func (t *Thread) Join() error {
	<-t.done
	return t.err
}

// Done is closed when the thread has finished and released its values.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// ID returns the thread's goroutine ID.
func (t *Thread) ID() goid.ID {
	return t.id
}

// OSThreadID returns the kernel thread ID of a pinned thread on Linux, and
// 0 otherwise.
func (t *Thread) OSThreadID() int {
	return t.osTID
}

// Reap releases the values of goroutines that exited without going through
// Go. Their native cell destructors run on the calling goroutine, so values
// a destructor stores in cells land in the caller's own slots. It returns
// the number of goroutines reaped.
//
// When the goroutine dump is too large to take in full, Reap releases
// nothing and logs a warning; a later call may succeed.
//
// Values in fallback and sharded cells are never released.
func Reap() int {
	n, err := tsd.Reap()
	if err != nil {
		Logger().Warn("reap skipped", slog.Any("error", err))
		return 0
	}
	if n > 0 {
		Logger().Debug("reaped exited goroutines", slog.Int("count", n))
	}
	return n
}

// FallbackEntries reports how many goroutines hold entries in the fallback
// map, and in the sharded map.
func FallbackEntries() (fallback, sharded int) {
	return backend.FallbackLen(), backend.ShardedLen()
}

// ClearPoison makes poisoned fallback and sharded maps usable again.
func ClearPoison() {
	backend.ClearFallbackPoison()
	backend.ClearShardedPoison()
}
