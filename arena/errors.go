package arena

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by arena operations.
//
// Callers should use [errors.Is]; both ErrStaleHandle and ErrOutOfRange
// also match ErrInvalidHandle:
//
//	if errors.Is(err, arena.ErrInvalidHandle) {
//	    // handle no longer refers to a live value
//	}
var (
	// ErrInvalidHandle is the common parent of stale and out-of-range handles.
	ErrInvalidHandle = errors.New("arena: invalid handle")

	// ErrStaleHandle indicates a generation mismatch: the slot was removed
	// (and possibly reused) after the handle was issued.
	ErrStaleHandle = fmt.Errorf("%w: stale generation", ErrInvalidHandle)

	// ErrOutOfRange indicates the index was never allocated by this arena.
	ErrOutOfRange = fmt.Errorf("%w: index out of range", ErrInvalidHandle)

	// ErrDuplicateValue is returned by Unique.Insert when an equal value is
	// already stored.
	ErrDuplicateValue = errors.New("arena: duplicate value")

	// ErrPoisonedLock indicates a Locked container was abandoned in the
	// middle of a mutation (the mutating callback panicked).
	ErrPoisonedLock = errors.New("arena: poisoned lock")
)

// HandleError carries the operation and handle that failed.
//
// The underlying sentinel can be accessed via errors.Unwrap.
type HandleError struct {
	Op         string
	Index      uint32
	Generation uint32
	Err        error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("%s %d@%d: %v", e.Op, e.Index, e.Generation, e.Err)
}

func (e *HandleError) Unwrap() error { return e.Err }

func handleErr[T any](op string, h Handle[T], err error) error {
	return &HandleError{Op: op, Index: h.index, Generation: h.generation, Err: err}
}
