package reactive

import "runtime"

// Derived is a read-only cell computed from other cells.
//
// Invalidation is pushed eagerly: when a source changes, the derived cell is
// marked dirty, scheduled, and its own dependents are marked dirty before the
// source's Set returns. Computation is pulled lazily: compute only runs when
// Value is called on a dirty cell, including the read a flush makes on
// behalf of subscribers.
//
// At flush time subscribers are skipped only when the cache was fresh at
// schedule time and the recomputed value equals it. A cell that was never
// computed, or whose cache was already stale when the change arrived, has no
// trustworthy previous value, so its subscribers are always notified.
type Derived[R any] struct {
	id      uint64
	sched   *Scheduler
	compute func() R

	// value is the cached result; meaningful only when computed is set.
	value    R
	computed bool

	// dirty forces recomputation on the next read.
	dirty bool

	// computing detects reads from inside compute.
	computing bool

	// snapshot is the cached value at schedule time.
	snapshot      R
	snapshotValid bool

	equal func(R, R) bool

	// hook is the strong end of this cell's links to its sources.
	hook *Hook
	regs []*Registration

	observers observerList[R]
	disposed  bool
}

// NewDerived creates a derived cell recomputed by compute whenever one of
// deps has changed since the last read. compute must only read deps.
func NewDerived[R any](s *Scheduler, compute func() R, deps ...Dependency) *Derived[R] {
	s = orDefault(s)
	d := &Derived[R]{
		id:      nextID(),
		sched:   s,
		compute: compute,
		dirty:   true,
	}
	d.hook = NewHook(d)
	for _, dep := range deps {
		d.regs = append(d.regs, dep.RegisterDependent(d.hook))
	}
	runtime.AddCleanup(d, s.tracker.Forget, d.id)
	return d
}

// Derive creates a derived cell over a single source.
func Derive[A, R any](s *Scheduler, src ReadonlyCell[A], fn func(A) R) *Derived[R] {
	return NewDerived(s, func() R {
		return fn(src.Value())
	}, src)
}

// Derive2 creates a derived cell over two sources.
func Derive2[A, B, R any](s *Scheduler, a ReadonlyCell[A], b ReadonlyCell[B], fn func(A, B) R) *Derived[R] {
	return NewDerived(s, func() R {
		return fn(a.Value(), b.Value())
	}, a, b)
}

// Derive3 creates a derived cell over three sources.
func Derive3[A, B, C, R any](s *Scheduler, a ReadonlyCell[A], b ReadonlyCell[B], c ReadonlyCell[C], fn func(A, B, C) R) *Derived[R] {
	return NewDerived(s, func() R {
		return fn(a.Value(), b.Value(), c.Value())
	}, a, b, c)
}

// DeriveAll creates a derived cell over any number of sources of one type.
// fn receives the source values in order.
func DeriveAll[T, R any](s *Scheduler, srcs []ReadonlyCell[T], fn func([]T) R) *Derived[R] {
	srcs = append([]ReadonlyCell[T](nil), srcs...)
	deps := make([]Dependency, len(srcs))
	for i, src := range srcs {
		deps[i] = src
	}
	return NewDerived(s, func() R {
		return fn(valuesOf(srcs))
	}, deps...)
}

// ID returns the unique identifier for this derived cell.
func (d *Derived[R]) ID() uint64 {
	return d.id
}

// Value returns the cached value, recomputing it first if a source changed
// since the last read. A panic in compute reaches the caller and leaves the
// cell dirty.
func (d *Derived[R]) Value() R {
	if d.dirty {
		d.recompute()
	}
	return d.value
}

// Dirty reports whether the next read will recompute.
func (d *Derived[R]) Dirty() bool {
	return d.dirty
}

func (d *Derived[R]) recompute() {
	if d.computing {
		panic(ErrCircularDependency)
	}
	d.computing = true
	defer func() { d.computing = false }()

	v := d.compute()
	d.value = v
	d.computed = true
	d.dirty = false
}

// WithEquals configures the derived cell with a custom equality function,
// used to decide whether subscribers see a change.
func (d *Derived[R]) WithEquals(fn func(R, R) bool) *Derived[R] {
	d.equal = fn
	return d
}

// Subscribe registers fn to be called with the recomputed value at most
// once per flush. See Derived for when an unchanged value is skipped.
func (d *Derived[R]) Subscribe(fn func(R)) *Subscription {
	return d.observers.add(&observer[R]{call: func(v R) error {
		fn(v)
		return nil
	}})
}

// SubscribeErr is Subscribe for observers that can fail.
func (d *Derived[R]) SubscribeErr(fn func(R) error) *Subscription {
	return d.observers.add(&observer[R]{call: fn})
}

// SubscribeAsync registers an observer that hands back its work as a
// channel. The flush does not wait for it; an error received from the
// channel is reported like any other observer failure. fn must either close
// the channel or send on it exactly once: a goroutine waits for that and
// leaks otherwise. A nil channel means there is nothing to wait for.
func (d *Derived[R]) SubscribeAsync(fn func(R) <-chan error) *Subscription {
	return d.observers.add(&observer[R]{async: fn})
}

// RegisterDependent implements Dependency.
func (d *Derived[R]) RegisterDependent(h *Hook) *Registration {
	return d.sched.tracker.Register(d.id, h)
}

// Computed derives a cell of the same type from d.
func (d *Derived[R]) Computed(fn func(R) R) *Derived[R] {
	return Derive(d.sched, ReadonlyCell[R](d), fn)
}

// Dispose unlinks d from its sources. It stops receiving invalidations and
// keeps its last cached value. Calling it more than once is a no-op.
func (d *Derived[R]) Dispose() {
	if d.disposed {
		return
	}
	d.disposed = true
	for _, reg := range d.regs {
		reg.Unregister()
	}
	d.regs = nil
}

// OnDependencyUpdated implements Dependent.
func (d *Derived[R]) OnDependencyUpdated() {
	if d.disposed {
		return
	}
	// Schedule before marking dirty: OnSchedule needs the prior state.
	d.sched.Schedule(d)
	d.dirty = true
	d.sched.tracker.Notify(d.id)
}

// OnSchedule implements Dispatchable. It runs before the cell is marked
// dirty for the change that scheduled it, so a clean cache holds the
// pre-change value. A cache that is already dirty may date from several
// turns ago and is not used as a snapshot.
func (d *Derived[R]) OnSchedule() {
	d.snapshot = d.value
	d.snapshotValid = d.computed && !d.dirty
}

// OnDispatch implements Dispatchable.
func (d *Derived[R]) OnDispatch() {
	var zero R
	snapshot, valid := d.snapshot, d.snapshotValid
	d.snapshot = zero
	d.snapshotValid = false

	if d.disposed || d.observers.len() == 0 {
		return
	}
	v := d.Value()
	if valid && d.equals(snapshot, v) {
		return
	}
	d.observers.notify(d.sched, d.id, v)
}

func (d *Derived[R]) equals(a, b R) bool {
	if d.equal != nil {
		return d.equal(a, b)
	}
	return identical(a, b)
}

// valuesOf reads every source in order.
func valuesOf[T any](srcs []ReadonlyCell[T]) []T {
	out := make([]T, len(srcs))
	for i, src := range srcs {
		out[i] = src.Value()
	}
	return out
}

var (
	_ ReadonlyCell[int] = (*Derived[int])(nil)
	_ Dependent         = (*Derived[int])(nil)
	_ Dispatchable      = (*Derived[int])(nil)
)
