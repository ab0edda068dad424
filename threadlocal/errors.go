package threadlocal

import (
	"errors"
	"fmt"

	"github.com/kolkov/threadlocal/internal/tls/backend"
	"github.com/kolkov/threadlocal/internal/tls/tsd"
)

var (
	// ErrKeysExhausted: no thread-specific data key was available for a
	// native cell.
	ErrKeysExhausted = tsd.ErrKeysExhausted

	// ErrTypeMismatch: a stored value does not have the cell's type.
	ErrTypeMismatch = backend.ErrTypeMismatch

	// ErrPoisoned: a map backend's lock holder panicked earlier.
	ErrPoisoned = backend.ErrPoisoned

	// ErrClosed: the cell was closed.
	ErrClosed = backend.ErrClosed

	// ErrUnknownBackend: the backend name or kind is not recognised.
	ErrUnknownBackend = backend.ErrUnknownKind

	// ErrThreadPanicked is matched by the error Join returns when the
	// thread's function panicked.
	ErrThreadPanicked = errors.New("threadlocal: thread panicked")
)

// PoisonError is the panic value raised by a poisoned map backend.
type PoisonError = backend.PoisonError

// PanicError is returned by Join when the thread's function panicked.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the panicking goroutine's stack trace.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrThreadPanicked, e.Value)
}

// Unwrap returns ErrThreadPanicked.
func (e *PanicError) Unwrap() error {
	return ErrThreadPanicked
}
