package reactive

import (
	"errors"
	"fmt"
)

// ErrCyclicScheduling is the sentinel wrapped by CycleError.
var ErrCyclicScheduling = errors.New("reactive: cyclic scheduling detected")

// ErrCircularDependency is the panic value raised when a derived cell is read
// from inside its own computation.
var ErrCircularDependency = errors.New("reactive: derived cell read during its own computation")

// ErrObserverPanic marks an ObserverError produced by a recovered panic.
var ErrObserverPanic = errors.New("reactive: observer panicked")

// CycleError is returned by Flush when flushes keep scheduling new work for
// more consecutive generations than the scheduler's cycle limit allows. The
// pending queue has already been dropped when it is returned.
type CycleError struct {
	// Generations is the number of consecutive self-triggered flushes.
	Generations int

	// Dropped is the number of queued items that were discarded.
	Dropped int
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("reactive: cyclic scheduling detected after %d flush generations (%d pending items dropped)",
		e.Generations, e.Dropped)
}

// Unwrap returns ErrCyclicScheduling for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCyclicScheduling
}

// ObserverError is reported when an observer fails during a flush.
type ObserverError struct {
	// Cell is the ID of the cell whose observer failed.
	Cell uint64

	// Err is the error the observer returned, sent, or panicked with.
	Err error
}

// Error implements the error interface.
func (e *ObserverError) Error() string {
	return fmt.Sprintf("reactive: observer of cell %d failed: %v", e.Cell, e.Err)
}

// Unwrap returns the underlying error.
func (e *ObserverError) Unwrap() error {
	return e.Err
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrObserverPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrObserverPanic, r)
}
