package reactive

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// DefaultCycleLimit is the number of consecutive self-triggered flushes after
// which the scheduler gives up and drops its queue.
const DefaultCycleLimit = 100

// Poster runs a task in a later scheduling turn. Loop is the standard
// implementation.
type Poster interface {
	Post(task func() error)
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(task func() error)

// Post implements Poster.
func (f PosterFunc) Post(task func() error) { f(task) }

// Scheduler coalesces the observer notifications caused by many synchronous
// writes into one flush per scheduling turn.
//
// A Scheduler and every cell created on it belong to a single goroutine:
// usually the goroutine running its Loop.
type Scheduler struct {
	poster     Poster
	tracker    *Tracker
	logger     *slog.Logger
	instrument Instrument
	cycleLimit int

	// queue holds the current generation in first-scheduled order.
	queue []Dispatchable

	// queued is the set of items with their pending flag set.
	queued map[Dispatchable]struct{}

	// flushPosted is set while a flush task is outstanding.
	flushPosted bool

	// flushing is set while a batch dispatches.
	flushing bool

	// cycles counts consecutive flushes that left new work behind.
	cycles int

	// retained keeps subscription groups alive until they are unsubscribed.
	retained map[*group]struct{}

	flushes uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPoster sets where flush tasks are posted. The default is a fresh Loop.
func WithPoster(p Poster) Option {
	return func(s *Scheduler) {
		s.poster = p
	}
}

// WithTracker sets the dependency side-table. The default is a fresh Tracker.
func WithTracker(t *Tracker) Option {
	return func(s *Scheduler) {
		s.tracker = t
	}
}

// WithLogger sets the logger used for isolated failures.
// If nil, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithInstrument attaches an Instrument.
func WithInstrument(in Instrument) Option {
	return func(s *Scheduler) {
		s.instrument = in
	}
}

// WithCycleLimit overrides DefaultCycleLimit. Values below 1 are ignored.
func WithCycleLimit(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.cycleLimit = n
		}
	}
}

// NewScheduler creates an isolated scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		cycleLimit: DefaultCycleLimit,
		queued:     make(map[Dispatchable]struct{}),
		retained:   make(map[*group]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poster == nil {
		s.poster = NewLoop()
	}
	if s.tracker == nil {
		s.tracker = NewTracker()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.instrument == nil {
		s.instrument = nopInstrument{}
	}
	return s
}

var (
	defaultScheduler     *Scheduler
	defaultLoop          *Loop
	defaultSchedulerOnce sync.Once
)

// Default returns the process-wide scheduler used when a nil scheduler is
// passed to a constructor. It is created on first use and is never torn
// down. It posts its flushes to DefaultLoop, which nothing runs on its own:
// observers of cells created on it fire only once the caller drives that
// loop with Run or RunPending.
func Default() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultLoop = NewLoop()
		defaultScheduler = NewScheduler(WithPoster(defaultLoop))
	})
	return defaultScheduler
}

// DefaultLoop returns the Loop that Default posts its flushes to.
func DefaultLoop() *Loop {
	Default()
	return defaultLoop
}

// orDefault resolves a nil scheduler to Default().
func orDefault(s *Scheduler) *Scheduler {
	if s == nil {
		return Default()
	}
	return s
}

// Poster returns where flush tasks are posted.
func (s *Scheduler) Poster() Poster {
	return s.poster
}

// Tracker returns the dependency side-table.
func (s *Scheduler) Tracker() *Tracker {
	return s.tracker
}

// Logger returns the scheduler's logger.
func (s *Scheduler) Logger() *slog.Logger {
	return s.logger
}

// Pending returns the number of items waiting for the next flush.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Flushes returns the number of non-empty flushes run so far.
func (s *Scheduler) Flushes() uint64 {
	return s.flushes
}

// Schedule queues item for the next flush. Scheduling an item that is
// already pending is a no-op; otherwise its OnSchedule runs immediately.
// item keys a map, so it must be comparable; Schedule panics otherwise.
func (s *Scheduler) Schedule(item Dispatchable) {
	if !reflect.TypeOf(item).Comparable() {
		panic(fmt.Sprintf("reactive: cannot schedule %T: Dispatchable must be comparable, use a pointer type", item))
	}
	if _, ok := s.queued[item]; ok {
		return
	}
	s.queued[item] = struct{}{}
	item.OnSchedule()
	s.queue = append(s.queue, item)

	// A flush in progress posts the next one itself once it knows whether
	// it tripped the cycle breaker.
	if !s.flushing && !s.flushPosted {
		s.flushPosted = true
		s.poster.Post(s.flush)
	}
}

// Flush dispatches the current generation. Items scheduled while it runs go
// to the next generation, which is posted as a new task. It returns a
// *CycleError once flushes have re-filled the queue cycleLimit times in a row.
func (s *Scheduler) Flush() error {
	return s.flush()
}

func (s *Scheduler) flush() error {
	if s.flushing {
		return nil
	}
	s.flushPosted = false
	if len(s.queue) == 0 {
		s.cycles = 0
		return nil
	}

	batch := s.queue
	s.queue = nil
	done := s.instrument.FlushStarted(len(batch))

	s.flushing = true
	for _, item := range batch {
		delete(s.queued, item)
		s.dispatch(item)
	}
	s.flushing = false
	s.flushes++

	if len(s.queue) == 0 {
		s.cycles = 0
		done(len(batch), nil)
		return nil
	}

	s.cycles++
	if s.cycles >= s.cycleLimit {
		err := &CycleError{Generations: s.cycles, Dropped: len(s.queue)}
		s.queue = nil
		s.queued = make(map[Dispatchable]struct{})
		s.cycles = 0
		s.logger.Error("reactive: cyclic scheduling, dropping pending queue",
			"generations", err.Generations,
			"dropped", err.Dropped)
		done(len(batch), err)
		return err
	}

	s.logger.Debug("reactive: flush left work behind", "generation", s.cycles, "pending", len(s.queue))
	done(len(batch), nil)
	s.flushPosted = true
	s.poster.Post(s.flush)
	return nil
}

// dispatch runs a single item's OnDispatch, isolating panics.
func (s *Scheduler) dispatch(item Dispatchable) {
	defer func() {
		if r := recover(); r != nil {
			s.reportFailure(idOf(item), panicError(r))
		}
	}()
	item.OnDispatch()
}

// reportFailure logs and counts an isolated observer failure. Safe for
// concurrent use.
func (s *Scheduler) reportFailure(cell uint64, err error) {
	oerr := &ObserverError{Cell: cell, Err: err}
	s.logger.Error("reactive: observer failed", "cell", cell, "error", err)
	s.instrument.ObserverFailed(oerr)
}

// retain keeps g reachable until release.
func (s *Scheduler) retain(g *group) {
	s.retained[g] = struct{}{}
}

func (s *Scheduler) release(g *group) {
	delete(s.retained, g)
}

// idOf returns the ID of items that carry one.
func idOf(item Dispatchable) uint64 {
	if d, ok := item.(interface{ ID() uint64 }); ok {
		return d.ID()
	}
	return 0
}
