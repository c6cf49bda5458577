package reactive

import (
	"io"
	"log/slog"
	"sync"
	"testing"
)

// recordingInstrument collects everything a scheduler reports.
type recordingInstrument struct {
	mu       sync.Mutex
	flushes  int
	sizes    []int
	errs     []error
	failures []error
	failed   chan error
}

func newRecordingInstrument() *recordingInstrument {
	return &recordingInstrument{failed: make(chan error, 16)}
}

func (r *recordingInstrument) FlushStarted(queued int) FlushDone {
	r.mu.Lock()
	r.flushes++
	r.sizes = append(r.sizes, queued)
	r.mu.Unlock()
	return func(_ int, err error) {
		if err != nil {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		}
	}
}

func (r *recordingInstrument) ObserverFailed(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
	select {
	case r.failed <- err:
	default:
	}
}

func (r *recordingInstrument) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

// newTestScheduler returns a quiet scheduler posting to its own Loop.
func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *Loop, *recordingInstrument) {
	t.Helper()
	loop := NewLoop()
	rec := newRecordingInstrument()
	base := []Option{
		WithPoster(loop),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithInstrument(rec),
	}
	return NewScheduler(append(base, opts...)...), loop, rec
}

// turn runs the loop until idle and fails the test on a task error.
func turn(t *testing.T, loop *Loop) {
	t.Helper()
	if err := loop.RunPending(); err != nil {
		t.Fatalf("RunPending() error = %v", err)
	}
}
