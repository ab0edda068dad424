package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch means a stored value does not have the cell's type.
	// It indicates two cells sharing one identity and is always fatal.
	ErrTypeMismatch = errors.New("backend: stored value has unexpected type")

	// ErrPoisoned means an earlier holder of a map backend's lock panicked.
	ErrPoisoned = errors.New("backend: store poisoned by an earlier panic")

	// ErrClosed means the native backend's key has been deleted.
	ErrClosed = errors.New("backend: use of closed backend")
)

// PoisonError is the panic value raised by a poisoned map store.
//
// Value is what the panicking holder of the lock panicked with. It is nil
// when the holder left through runtime.Goexit. Stack is the holder's stack
// at that point, including the frame that panicked.
type PoisonError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PoisonError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPoisoned, e.Value)
}

// Unwrap lets errors.Is match ErrPoisoned.
func (e *PoisonError) Unwrap() error {
	return ErrPoisoned
}

func typeMismatch[T any](slot string, got any) error {
	return fmt.Errorf("%w: %s holds %T, want %T", ErrTypeMismatch, slot, got, (*T)(nil))
}
