package reactive

import "sync/atomic"

// ids hands out identifiers for cells, derived cells and groups. They are
// never reused, so a stale Registration cannot match a new row.
var ids atomic.Uint64

func nextID() uint64 { return ids.Add(1) }

// Dependency is anything dependents can attach to: cells and derived cells.
type Dependency interface {
	// RegisterDependent links h to this dependency. The dependency holds h
	// weakly; the caller must keep h reachable for as long as it wants to be
	// notified.
	RegisterDependent(h *Hook) *Registration

	// ID returns the identity used to key the dependency in its Tracker.
	ID() uint64
}

// Dependent is notified synchronously whenever one of its dependencies
// changes.
type Dependent interface {
	OnDependencyUpdated()
}

// Dispatchable is an item the Scheduler can queue for a deferred flush.
// Implementations must be comparable, and identity matters, so use pointer
// types.
type Dispatchable interface {
	// OnSchedule is called once when the item enters a queue generation.
	// Cells use it to snapshot their pre-change value.
	OnSchedule()

	// OnDispatch is called once per flush the item was queued for.
	OnDispatch()
}

// ReadonlyCell is the read side shared by Cell and Derived.
type ReadonlyCell[T any] interface {
	Dependency

	// Value returns the current value.
	Value() T

	// Subscribe registers an observer called at most once per flush with
	// the new value.
	Subscribe(fn func(T)) *Subscription
}

// Hook is the strongly-held half of a dependent link. Trackers only keep a
// weak pointer to it, so the link lives exactly as long as whoever owns the
// Hook.
type Hook struct {
	target Dependent
}

// NewHook wraps d for registration with a Dependency.
func NewHook(d Dependent) *Hook {
	return &Hook{target: d}
}

// HookFunc wraps a plain function as a Hook.
func HookFunc(fn func()) *Hook {
	return &Hook{target: dependentFunc(fn)}
}

type dependentFunc func()

func (f dependentFunc) OnDependencyUpdated() { f() }
