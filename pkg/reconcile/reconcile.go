package reconcile

// Container is the mutable ordered output a sequence is rendered into.
type Container[N comparable] interface {
	// InsertBefore places nodes, in order, immediately before anchor.
	// Nodes already in the container are relocated.
	InsertBefore(anchor N, nodes ...N)

	// Append places nodes, in order, at the end. Nodes already in the
	// container are relocated.
	Append(nodes ...N)
}

// Remover is implemented by containers that let Reconcile drop stale nodes
// itself. For other containers the caller removes them before reconciling.
type Remover[N comparable] interface {
	Remove(nodes ...N)
}

// Reconcile patches c, which currently holds current in order, so that it
// holds target. Nodes absent from target are removed in one Remove call when
// c implements Remover. current and target must not contain duplicates.
//
// An absent (nil or empty) current means c is empty: every target node is
// inserted, as one Append op, rather than nothing being done.
func Reconcile[N comparable](c Container[N], current, target []N) (Stats, error) {
	plan, err := Diff(current, target)
	if err != nil {
		return Stats{}, err
	}
	Apply(c, plan)
	return plan.Stats(), nil
}

// Apply performs a plan computed by Diff.
func Apply[N comparable](c Container[N], plan Plan[N]) {
	if len(plan.Removed) > 0 {
		if r, ok := c.(Remover[N]); ok {
			r.Remove(plan.Removed...)
		}
	}
	for _, op := range plan.Ops {
		if op.AtEnd {
			c.Append(op.Nodes...)
		} else {
			c.InsertBefore(op.Anchor, op.Nodes...)
		}
	}
}
