// Package reactive provides cells, derived cells and the scheduler that
// batches their observer notifications.
//
// # Core Types
//
// Cell[T] is a mutable value:
//
//	s := reactive.NewScheduler(reactive.WithPoster(loop))
//	x := reactive.NewCell(s, 2)
//	y := reactive.NewCell(s, 3)
//
// Derived[R] is a cached computation over other cells:
//
//	area := reactive.Derive2(s, x, y, func(a, b int) int { return a * b })
//	area.Value() // 6
//
// Writes invalidate dependents synchronously, so a derived value read right
// after a write is already current:
//
//	x.Set(5)
//	area.Value() // 15, before any flush
//
// # Batching
//
// Observers never run inside Set. A write schedules the cell on its
// Scheduler, which posts one flush task per scheduling turn to its Poster.
// Every write made before that task runs is coalesced: each observer sees at
// most one call per flush, carrying the latest value, and no call at all if
// the value ended up where it started.
//
// Loop is the standard Poster. Each posted task is one turn:
//
//	loop := reactive.NewLoop()
//	s := reactive.NewScheduler(reactive.WithPoster(loop))
//	go loop.Run(ctx)
//	loop.Do(func() { x.Set(7) })
//
// # Weak Dependents
//
// Dependencies keep their dependents in a Tracker side-table through weak
// pointers. A derived cell nobody references any more is collected without
// an explicit Dispose, and its dead entry is pruned the next time its source
// notifies.
//
// # Failures
//
// Observer panics and errors are logged and reported to the scheduler's
// Instrument; other observers still run. Panics in a derived computation
// reach whoever called Value. A flush chain that keeps re-scheduling itself
// is stopped after DefaultCycleLimit generations with a *CycleError.
//
// # Thread Safety
//
// A Scheduler and its cells belong to one goroutine. Loop.Post and Loop.Do
// are the only entry points safe to call from elsewhere.
package reactive
