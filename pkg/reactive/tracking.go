package reactive

import (
	"sync"
	"weak"
)

// Tracker is the side-table mapping a dependency's ID to the hooks of its
// dependents. Hooks are held weakly and pruned lazily when a notification
// finds them collected.
//
// Cells and derived cells stay single-goroutine, but rows are also dropped
// from the runtime's cleanup goroutine when a dependency is collected, so
// the table itself is guarded by a mutex.
type Tracker struct {
	mu   sync.Mutex
	rows map[uint64]*trackingRow
}

// trackingRow is the tracking record of one dependency.
type trackingRow struct {
	// next is the last registration ID handed out for this dependency.
	next uint64

	// hooks maps a registration ID to its weakly-held hook.
	hooks map[uint64]weak.Pointer[Hook]

	// order lists registration IDs in registration order. Removed IDs are
	// compacted out on removal. Rows are kept when they empty so IDs are
	// never reused for the same dependency.
	order []uint64
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{rows: make(map[uint64]*trackingRow)}
}

// Register links h to the dependency identified by dep and returns a handle
// that removes the link.
func (t *Tracker) Register(dep uint64, h *Hook) *Registration {
	if h == nil {
		return &Registration{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	row := t.rows[dep]
	if row == nil {
		row = &trackingRow{hooks: make(map[uint64]weak.Pointer[Hook])}
		t.rows[dep] = row
	}
	row.next++
	id := row.next
	row.hooks[id] = weak.Make(h)
	row.order = append(row.order, id)

	return &Registration{tracker: t, dep: dep, id: id}
}

// Notify invokes every live hook registered on dep, in registration order.
// Entries whose hook was collected are removed without invoking anything.
// Hooks may register or unregister during the pass: entries removed before
// their turn are skipped, entries added during the pass wait for the next one.
func (t *Tracker) Notify(dep uint64) {
	t.mu.Lock()
	row := t.rows[dep]
	if row == nil || len(row.order) == 0 {
		t.mu.Unlock()
		return
	}
	ids := make([]uint64, len(row.order))
	copy(ids, row.order)
	t.mu.Unlock()

	for _, id := range ids {
		t.mu.Lock()
		wp, ok := row.hooks[id]
		t.mu.Unlock()
		if !ok {
			continue
		}

		h := wp.Value()
		if h == nil {
			t.remove(dep, id)
			continue
		}
		h.target.OnDependencyUpdated()
	}
}

// Len returns the number of registrations recorded for dep, including
// entries whose hook was collected but not yet pruned.
func (t *Tracker) Len(dep uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if row := t.rows[dep]; row != nil {
		return len(row.order)
	}
	return 0
}

// Forget drops the whole row of dep. Cells call it from a runtime cleanup
// once they are collected.
func (t *Tracker) Forget(dep uint64) {
	t.mu.Lock()
	delete(t.rows, dep)
	t.mu.Unlock()
}

// remove deletes a single registration.
func (t *Tracker) remove(dep, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row := t.rows[dep]
	if row == nil {
		return
	}
	if _, ok := row.hooks[id]; !ok {
		return
	}
	delete(row.hooks, id)
	for i, existing := range row.order {
		if existing == id {
			row.order = append(row.order[:i], row.order[i+1:]...)
			break
		}
	}
}

// Registration is the handle returned when a dependent is linked to a
// dependency. Unregister is idempotent.
type Registration struct {
	tracker *Tracker
	dep     uint64
	id      uint64
	done    bool
}

// Unregister removes the link. Calling it more than once is a no-op.
func (r *Registration) Unregister() {
	if r == nil || r.done || r.tracker == nil {
		return
	}
	r.done = true
	r.tracker.remove(r.dep, r.id)
}
