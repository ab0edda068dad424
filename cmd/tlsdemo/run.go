package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/kolkov/threadlocal/threadlocal"
)

// run executes the demo described by cfg and writes one line per thread
// to out.
func run(ctx context.Context, cfg Config, out io.Writer, logger *slog.Logger) error {
	kind, err := cfg.validate()
	if err != nil {
		return err
	}
	threadlocal.SetLogger(logger)
	defer threadlocal.SetLogger(nil)

	var released atomic.Int32
	counter := threadlocal.New(
		func() uint32 { return 0 },
		threadlocal.WithBackend(kind),
		threadlocal.WithDestructor(func(*uint32) { released.Add(1) }),
	)
	defer func() {
		if err := counter.Close(); err != nil {
			logger.Warn("close counter", slog.Any("error", err))
		}
	}()

	var opts []threadlocal.ThreadOption
	if cfg.Pin {
		opts = append(opts, threadlocal.Pinned())
	}

	logger.DebugContext(ctx, "starting workers",
		slog.Int("workers", cfg.Workers),
		slog.Int("iterations", cfg.Iterations),
		slog.String("backend", kind.String()))

	lines := make([]string, cfg.Workers)
	threads := make([]*threadlocal.Thread, cfg.Workers)
	for i := range threads {
		worker := i + 1
		threads[i] = threadlocal.Go(func() {
			for range cfg.Iterations {
				counter.With(func(n *uint32) { *n++ })
			}
			n := threadlocal.With(counter, func(n *uint32) uint32 { return *n })
			lines[i] = fmt.Sprintf("In thread %d, counter value is %d", worker, n)
		}, opts...)
	}

	var errs []error
	for i, th := range threads {
		if err := th.Join(); err != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", i+1, err))
			continue
		}
		logger.DebugContext(ctx, "worker finished",
			slog.Int("worker", i+1),
			slog.Int64("goroutine", int64(th.ID())),
			slog.Int("os_thread", th.OSThreadID()))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	own := threadlocal.With(counter, func(n *uint32) uint32 { return *n })
	if _, err := fmt.Fprintf(out, "In thread 0, counter value is %d\n", own); err != nil {
		return err
	}

	fallback, sharded := threadlocal.FallbackEntries()
	logger.DebugContext(ctx, "done",
		slog.Int("released", int(released.Load())),
		slog.Int("fallback_entries", fallback),
		slog.Int("sharded_entries", sharded))
	return nil
}
