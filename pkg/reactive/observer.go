package reactive

import "slices"

// Subscription is the handle returned by Subscribe and friends.
// Unsubscribe is idempotent.
type Subscription struct {
	cancel func()
	done   bool
}

// Unsubscribe stops further notifications. Calling it more than once is a
// no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.done {
		return
	}
	s.done = true
	if s.cancel != nil {
		s.cancel()
	}
}

// observer is one subscriber of a cell. Exactly one of call and async is set.
type observer[T any] struct {
	call    func(T) error
	async   func(T) <-chan error
	removed bool
}

// observerList keeps observers in subscription order.
type observerList[T any] struct {
	entries []*observer[T]
}

func (l *observerList[T]) add(o *observer[T]) *Subscription {
	l.entries = append(l.entries, o)
	return &Subscription{cancel: func() {
		o.removed = true
		if i := slices.Index(l.entries, o); i >= 0 {
			l.entries = slices.Delete(l.entries, i, i+1)
		}
	}}
}

func (l *observerList[T]) len() int {
	return len(l.entries)
}

// notify delivers v to every observer present when the pass starts.
// Observers unsubscribed by an earlier observer in the same pass are skipped.
func (l *observerList[T]) notify(s *Scheduler, cell uint64, v T) {
	snapshot := slices.Clone(l.entries)
	for _, o := range snapshot {
		if o.removed {
			continue
		}
		callObserver(s, cell, o, v)
	}
}

// callObserver invokes one observer, isolating panics and errors. Async
// observers are awaited on their own goroutine; the flush never waits.
func callObserver[T any](s *Scheduler, cell uint64, o *observer[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			s.reportFailure(cell, panicError(r))
		}
	}()

	if o.async != nil {
		ch := o.async(v)
		if ch == nil {
			return
		}
		go func() {
			if err, ok := <-ch; ok && err != nil {
				s.reportFailure(cell, err)
			}
		}()
		return
	}

	if err := o.call(v); err != nil {
		s.reportFailure(cell, err)
	}
}
