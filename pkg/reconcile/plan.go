package reconcile

import (
	"errors"
	"fmt"
)

// ErrDuplicateItem is returned when a sequence contains the same node twice.
var ErrDuplicateItem = errors.New("reconcile: duplicate item in sequence")

// OpKind is the kind of a reconciliation operation.
type OpKind uint8

const (
	OpInsert OpKind = 0x01 // Insert nodes absent from the current sequence
	OpMove   OpKind = 0x02 // Relocate existing nodes out of relative order
)

// String returns the string representation of the OpKind.
func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "Insert"
	case OpMove:
		return "Move"
	default:
		return "Unknown"
	}
}

// Op places a contiguous run of target nodes.
type Op[N comparable] struct {
	Kind  OpKind // Insert or Move
	Nodes []N    // Nodes in target order
	Index int    // Target index of Nodes[0]

	// Anchor is the node the run goes in front of. When AtEnd is set the
	// run is appended and Anchor is the zero value.
	Anchor N
	AtEnd  bool
}

// Plan is the patch turning one sequence into another. Ops are stored in the
// order they must be applied: from the end of the target sequence to its
// start, so every anchor is already in its final place when used.
type Plan[N comparable] struct {
	// Removed lists current nodes absent from the target, in current order.
	Removed []N

	// Ops are the insert and move runs, in application order.
	Ops []Op[N]

	// Stable is the number of nodes left where they are.
	Stable int
}

// Stats summarizes a plan.
type Stats struct {
	Removed  int // Nodes removed
	Inserted int // Nodes inserted
	Moved    int // Nodes moved
	Stable   int // Nodes untouched
	Ops      int // InsertBefore/Append calls
}

// Stats returns the node and call counts of p.
func (p Plan[N]) Stats() Stats {
	st := Stats{Removed: len(p.Removed), Stable: p.Stable, Ops: len(p.Ops)}
	for _, op := range p.Ops {
		switch op.Kind {
		case OpInsert:
			st.Inserted += len(op.Nodes)
		case OpMove:
			st.Moved += len(op.Nodes)
		}
	}
	return st
}

// Empty reports whether applying p changes nothing.
func (p Plan[N]) Empty() bool {
	return len(p.Removed) == 0 && len(p.Ops) == 0
}

// Diff computes the plan turning current into target. A nil current yields
// inserts for all of target.
func Diff[N comparable](current, target []N) (Plan[N], error) {
	var plan Plan[N]

	targetIndex := make(map[N]int, len(target))
	for i, n := range target {
		if _, dup := targetIndex[n]; dup {
			return Plan[N]{}, fmt.Errorf("%w: target index %d", ErrDuplicateItem, i)
		}
		targetIndex[n] = i
	}

	// oldIndexAt[t] is the current index of target[t], or -1 for new nodes.
	oldIndexAt := make([]int, len(target))
	for i := range oldIndexAt {
		oldIndexAt[i] = -1
	}

	seen := make(map[N]struct{}, len(current))
	moved := false
	last := -1
	for ci, n := range current {
		if _, dup := seen[n]; dup {
			return Plan[N]{}, fmt.Errorf("%w: current index %d", ErrDuplicateItem, ci)
		}
		seen[n] = struct{}{}

		ti, ok := targetIndex[n]
		if !ok {
			plan.Removed = append(plan.Removed, n)
			continue
		}
		oldIndexAt[ti] = ci
		if ti < last {
			moved = true
		} else {
			last = ti
		}
	}

	stable := make([]bool, len(target))
	if moved {
		for _, ti := range LIS(oldIndexAt) {
			stable[ti] = true
		}
	} else {
		for ti, ci := range oldIndexAt {
			stable[ti] = ci >= 0
		}
	}

	kindAt := func(ti int) OpKind {
		if oldIndexAt[ti] < 0 {
			return OpInsert
		}
		return OpMove
	}

	for i := len(target) - 1; i >= 0; {
		if stable[i] {
			plan.Stable++
			i--
			continue
		}

		kind := kindAt(i)
		start := i
		for start > 0 && !stable[start-1] && kindAt(start-1) == kind {
			start--
		}

		op := Op[N]{
			Kind:  kind,
			Nodes: append([]N(nil), target[start:i+1]...),
			Index: start,
		}
		if i+1 < len(target) {
			op.Anchor = target[i+1]
		} else {
			op.AtEnd = true
		}
		plan.Ops = append(plan.Ops, op)
		i = start - 1
	}

	return plan, nil
}
