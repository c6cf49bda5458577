package reactive

// group is a dispatchable dependent combining several sources into one
// observer call per flush.
type group struct {
	id     uint64
	sched  *Scheduler
	hook   *Hook
	regs   []*Registration
	active bool

	dispatch func()
}

func newGroup(s *Scheduler, deps []Dependency, dispatch func()) (*group, *Subscription) {
	g := &group{
		id:       nextID(),
		sched:    s,
		active:   true,
		dispatch: dispatch,
	}
	g.hook = NewHook(g)
	for _, dep := range deps {
		g.regs = append(g.regs, dep.RegisterDependent(g.hook))
	}
	s.retain(g)

	return g, &Subscription{cancel: func() {
		g.active = false
		for _, reg := range g.regs {
			reg.Unregister()
		}
		g.regs = nil
		s.release(g)
	}}
}

// ID returns the unique identifier for this group.
func (g *group) ID() uint64 {
	return g.id
}

// OnDependencyUpdated implements Dependent.
func (g *group) OnDependencyUpdated() {
	if g.active {
		g.sched.Schedule(g)
	}
}

// OnSchedule implements Dispatchable.
func (g *group) OnSchedule() {}

// OnDispatch implements Dispatchable.
func (g *group) OnDispatch() {
	if g.active {
		g.dispatch()
	}
}

// SubscribeMany calls fn with the values of all sources, in order, once per
// flush in which at least one of them differs from the values fn last saw.
// The subscription stays alive until Unsubscribe.
func SubscribeMany[T any](s *Scheduler, sources []ReadonlyCell[T], fn func([]T)) *Subscription {
	s = orDefault(s)
	sources = append([]ReadonlyCell[T](nil), sources...)
	deps := make([]Dependency, len(sources))
	for i, src := range sources {
		deps[i] = src
	}

	last := valuesOf(sources)
	var g *group
	g, sub := newGroup(s, deps, func() {
		current := valuesOf(sources)
		changed := false
		for i := range current {
			if !identical(last[i], current[i]) {
				changed = true
				break
			}
		}
		if !changed {
			return
		}
		last = current
		callObserver(s, g.id, &observer[[]T]{call: func(v []T) error {
			fn(v)
			return nil
		}}, current)
	})
	return sub
}

// Watch calls fn once per flush in which any of deps notified its
// dependents. Unlike SubscribeMany it does not compare values, so it accepts
// dependencies of mixed types.
func Watch(s *Scheduler, fn func(), deps ...Dependency) *Subscription {
	s = orDefault(s)
	var g *group
	g, sub := newGroup(s, deps, func() {
		callObserver(s, g.id, &observer[struct{}]{call: func(struct{}) error {
			fn()
			return nil
		}}, struct{}{})
	})
	return sub
}

var (
	_ Dependent    = (*group)(nil)
	_ Dispatchable = (*group)(nil)
)
