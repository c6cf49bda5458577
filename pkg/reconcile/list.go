package reconcile

import "slices"

// List is a slice-backed Container. It counts the calls made on it, which
// makes it useful for checking plans and as a server-side model of a
// rendered list.
type List[N comparable] struct {
	items []N

	// InsertCalls, AppendCalls and RemoveCalls count container calls.
	InsertCalls int
	AppendCalls int
	RemoveCalls int
}

// NewList creates a List holding items.
func NewList[N comparable](items ...N) *List[N] {
	return &List[N]{items: slices.Clone(items)}
}

// Items returns a copy of the current contents.
func (l *List[N]) Items() []N {
	return slices.Clone(l.items)
}

// Len returns the number of nodes.
func (l *List[N]) Len() int {
	return len(l.items)
}

// Calls returns the total number of container calls.
func (l *List[N]) Calls() int {
	return l.InsertCalls + l.AppendCalls + l.RemoveCalls
}

// InsertBefore implements Container. A missing anchor appends.
func (l *List[N]) InsertBefore(anchor N, nodes ...N) {
	l.InsertCalls++
	l.detach(nodes)
	at := slices.Index(l.items, anchor)
	if at < 0 {
		l.items = append(l.items, nodes...)
		return
	}
	l.items = slices.Insert(l.items, at, nodes...)
}

// Append implements Container.
func (l *List[N]) Append(nodes ...N) {
	l.AppendCalls++
	l.detach(nodes)
	l.items = append(l.items, nodes...)
}

// Remove implements Remover.
func (l *List[N]) Remove(nodes ...N) {
	l.RemoveCalls++
	l.detach(nodes)
}

// detach drops nodes from their current positions.
func (l *List[N]) detach(nodes []N) {
	if len(nodes) == 0 {
		return
	}
	drop := make(map[N]struct{}, len(nodes))
	for _, n := range nodes {
		drop[n] = struct{}{}
	}
	l.items = slices.DeleteFunc(l.items, func(n N) bool {
		_, ok := drop[n]
		return ok
	})
}

var (
	_ Container[string] = (*List[string])(nil)
	_ Remover[string]   = (*List[string])(nil)
)
