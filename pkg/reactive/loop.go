package reactive

import (
	"context"
	"sync"
)

// Loop is a cooperative task queue. Each task is one scheduling turn: the
// scheduler posts at most one flush per turn, so every write made inside a
// task is batched into the flush that follows it.
//
// Post and Do are safe to call from any goroutine. Tasks always run on the
// goroutine calling Run or RunPending.
type Loop struct {
	mu    sync.Mutex
	tasks []func() error
	wake  chan struct{}
}

// NewLoop creates an empty Loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues a task for a later turn.
func (l *Loop) Post(task func() error) {
	if task == nil {
		return
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do queues fn to run on the loop. Use it to write cells from other
// goroutines.
func (l *Loop) Do(fn func()) {
	l.Post(func() error {
		fn()
		return nil
	})
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// next pops the oldest task.
func (l *Loop) next() (func() error, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return task, true
}

// RunPending runs tasks until the queue is empty, including tasks posted by
// the tasks it runs. It stops at, and returns, the first task error.
func (l *Loop) RunPending() error {
	for {
		task, ok := l.next()
		if !ok {
			return nil
		}
		if err := task(); err != nil {
			return err
		}
	}
}

// Run processes tasks as they are posted until ctx is done or a task fails.
// It returns the task error, or ctx.Err() on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := l.RunPending(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}
