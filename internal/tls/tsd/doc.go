// Package tsd implements thread-specific data keys for goroutines.
//
// The package mirrors the POSIX pthread_key_* facility: a process-wide table
// of keys, each optionally carrying a destructor, and for every thread a
// private table of values indexed by key. A thread here is a goroutine,
// identified by its runtime goroutine ID.
//
// # Layout
//
// Keys are indices into a fixed table of KeysMax entries. Every index has a
// sequence number that is bumped when a key is created on it, so a value
// stored under a deleted key can never be read back through a newer key that
// reuses the same index.
//
// Each thread owns a control block (Thread) holding a two-level table of
// values: 32 lazily allocated blocks of 32 slots. The block pointers and the
// slots are atomics, so the owner reads and writes its values without any
// lock while the exit procedure can still run safely on another goroutine
// once the owner is gone.
//
// # Thread exit
//
// Go does not report goroutine exit, so the exit procedure runs in one of two
// ways:
//
//  1. The goroutine calls ExitSelf as its last action (the threadlocal
//     package's managed threads do this). Destructors then run on the
//     terminating goroutine itself.
//  2. Reap compares the registered control blocks with a runtime stack dump
//     and exits every block whose goroutine is gone. Destructors then run on
//     the goroutine calling Reap, and values they store land in its block.
//     A truncated dump proves nothing about absent goroutines, so Reap then
//     exits no block at all.
//
// Either way the exit procedure runs at most once per control block and
// repeats destructor passes up to DestructorIterations times, like
// PTHREAD_DESTRUCTOR_ITERATIONS.
//
// # Thread Safety
//
// Create and Delete are serialised by a single mutex. Get, Set and Self take
// no locks after a thread's first access.
package tsd
