package reactive

import "runtime"

// Cell is a mutable reactive value.
//
// Writing a different value marks every dependent dirty before Set returns
// and schedules the cell's observers for the next flush. Observers run at
// most once per flush, and only if the value at flush time differs from the
// value the cell had when it was first scheduled.
type Cell[T any] struct {
	id    uint64
	sched *Scheduler

	// value is the current value.
	value T

	// snapshot is the value captured when the cell entered the queue.
	snapshot T

	// equal overrides identical when set.
	equal func(T, T) bool

	observers observerList[T]
}

// NewCell creates a cell on s. A nil s means Default().
func NewCell[T any](s *Scheduler, initial T) *Cell[T] {
	s = orDefault(s)
	c := &Cell[T]{
		id:    nextID(),
		sched: s,
		value: initial,
	}
	runtime.AddCleanup(c, s.tracker.Forget, c.id)
	return c
}

// ID returns the unique identifier for this cell.
func (c *Cell[T]) ID() uint64 {
	return c.id
}

// Value returns the current value. It has no side effects.
func (c *Cell[T]) Value() T {
	return c.value
}

// Set stores v. Writing a value identical to the current one does nothing.
func (c *Cell[T]) Set(v T) {
	if c.equals(c.value, v) {
		return
	}
	c.sched.Schedule(c)
	c.value = v
	c.sched.tracker.Notify(c.id)
}

// Update sets the value to fn applied to the current value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.value))
}

// WithEquals returns the cell configured with a custom equality function.
func (c *Cell[T]) WithEquals(fn func(T, T) bool) *Cell[T] {
	c.equal = fn
	return c
}

// Subscribe registers fn to be called with the new value once per flush in
// which the value changed.
func (c *Cell[T]) Subscribe(fn func(T)) *Subscription {
	return c.observers.add(&observer[T]{call: func(v T) error {
		fn(v)
		return nil
	}})
}

// SubscribeErr is Subscribe for observers that can fail. A returned error is
// logged and does not affect other observers.
func (c *Cell[T]) SubscribeErr(fn func(T) error) *Subscription {
	return c.observers.add(&observer[T]{call: fn})
}

// SubscribeAsync registers an observer that hands back its work as a
// channel. The flush does not wait for it; an error received from the
// channel is reported like any other observer failure. fn must either close
// the channel or send on it exactly once: a goroutine waits for that and
// leaks otherwise. A nil channel means there is nothing to wait for.
func (c *Cell[T]) SubscribeAsync(fn func(T) <-chan error) *Subscription {
	return c.observers.add(&observer[T]{async: fn})
}

// RegisterDependent implements Dependency.
func (c *Cell[T]) RegisterDependent(h *Hook) *Registration {
	return c.sched.tracker.Register(c.id, h)
}

// Computed derives a cell of the same type from c.
// Use Derive for a different result type.
func (c *Cell[T]) Computed(fn func(T) T) *Derived[T] {
	return Derive(c.sched, ReadonlyCell[T](c), fn)
}

// OnSchedule implements Dispatchable.
func (c *Cell[T]) OnSchedule() {
	c.snapshot = c.value
}

// OnDispatch implements Dispatchable.
func (c *Cell[T]) OnDispatch() {
	var zero T
	snapshot := c.snapshot
	c.snapshot = zero

	if c.observers.len() == 0 || c.equals(snapshot, c.value) {
		return
	}
	c.observers.notify(c.sched, c.id, c.value)
}

func (c *Cell[T]) equals(a, b T) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return identical(a, b)
}

var (
	_ ReadonlyCell[int] = (*Cell[int])(nil)
	_ Dispatchable      = (*Cell[int])(nil)
)
