package reactive

import (
	"errors"
	"runtime"
	"testing"
)

func TestDerivedAreaScenario(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	x := NewCell(s, 2)
	y := NewCell(s, 3)
	area := Derive2(s, x, y, func(a, b int) int { return a * b })

	if area.Value() != 6 {
		t.Fatalf("area = %d, want 6", area.Value())
	}

	var got []int
	area.Subscribe(func(v int) { got = append(got, v) })

	x.Set(5)
	if area.Value() != 15 {
		t.Errorf("area before flush = %d, want 15", area.Value())
	}
	if len(got) != 0 {
		t.Fatalf("observer ran before the flush: %v", got)
	}

	turn(t, loop)

	if len(got) != 1 || got[0] != 15 {
		t.Errorf("observer calls = %v, want [15]", got)
	}
}

func TestDerivedIsLazy(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	x := NewCell(s, 2)
	y := NewCell(s, 3)

	computes := 0
	area := Derive2(s, x, y, func(a, b int) int {
		computes++
		return a * b
	})

	if computes != 0 {
		t.Fatalf("compute ran %d times before the first read", computes)
	}
	if area.Value() != 6 || area.Value() != 6 {
		t.Fatal("unexpected area")
	}
	if computes != 1 {
		t.Errorf("compute ran %d times for two reads, want 1", computes)
	}

	x.Set(4)
	x.Set(5)
	if computes != 1 {
		t.Errorf("compute ran eagerly on write: %d", computes)
	}
	if !area.Dirty() {
		t.Error("area should be dirty after a source write")
	}
	if area.Value() != 15 {
		t.Errorf("area = %d, want 15", area.Value())
	}
	if computes != 2 {
		t.Errorf("compute ran %d times, want 2", computes)
	}
}

func TestDerivedBatchesSourceWrites(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	a := NewCell(s, 1)
	b := Derive(s, a, func(v int) int { return v * 10 })

	var got []int
	b.Subscribe(func(v int) { got = append(got, v) })

	a.Set(2)
	a.Set(3)
	a.Set(4)
	turn(t, loop)

	if len(got) != 1 || got[0] != 40 {
		t.Errorf("observer calls = %v, want [40]", got)
	}
}

func TestDerivedSkipsUnchangedResult(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	n := NewCell(s, 1)
	odd := Derive(s, n, func(v int) bool { return v%2 == 1 })
	_ = odd.Value()

	calls := 0
	odd.Subscribe(func(bool) { calls++ })

	n.Set(3)
	turn(t, loop)

	if calls != 0 {
		t.Errorf("observer called %d times for an unchanged result", calls)
	}
}

func TestDerivedFirstComputeCountsAsChange(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	n := NewCell(s, 1)
	d := Derive(s, n, func(v int) int { return v + 1 })

	var got []int
	d.Subscribe(func(v int) { got = append(got, v) })

	n.Set(2)
	turn(t, loop)

	if len(got) != 1 || got[0] != 3 {
		t.Errorf("observer calls = %v, want [3]", got)
	}
}

func TestDerivedStaleCacheAfterUnobservedTurn(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	x := NewCell(s, 1)
	d := Derive(s, x, func(v int) int { return v })
	if d.Value() != 1 {
		t.Fatalf("d = %d, want 1", d.Value())
	}

	// Nobody reads d during this flush, so its cache keeps 1.
	x.Set(2)
	turn(t, loop)

	var got []int
	d.Subscribe(func(v int) { got = append(got, v) })

	x.Set(1)
	turn(t, loop)

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("observer calls = %v, want [1] for the 2 -> 1 change", got)
	}
}

func TestDerivedInvalidatedTwiceBeforeRead(t *testing.T) {
	tests := []struct {
		name string
		read bool
	}{
		{"computed once", true},
		{"never computed", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, loop, _ := newTestScheduler(t)
			x := NewCell(s, 1)
			d := Derive(s, x, func(v int) int { return v * 10 })
			if tt.read {
				_ = d.Value()
			}

			x.Set(2)
			turn(t, loop)
			x.Set(3)
			turn(t, loop)

			var got []int
			d.Subscribe(func(v int) { got = append(got, v) })

			x.Set(1)
			turn(t, loop)

			if len(got) != 1 || got[0] != 10 {
				t.Errorf("observer calls = %v, want [10]", got)
			}
		})
	}
}

func TestDerivedRevertedWithinTurnDoesNotNotify(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	x := NewCell(s, 1)
	d := Derive(s, x, func(v int) int { return v * 10 })
	_ = d.Value()

	calls := 0
	d.Subscribe(func(int) { calls++ })

	x.Set(2)
	x.Set(1)
	turn(t, loop)

	if calls != 0 {
		t.Errorf("observer called %d times for a reverted write", calls)
	}

	x.Set(5)
	turn(t, loop)
	if calls != 1 {
		t.Errorf("observer called %d times after a real change, want 1", calls)
	}
}

func TestDerivedChainPropagatesDirty(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	base := NewCell(s, 1)
	plusOne := Derive(s, base, func(v int) int { return v + 1 })
	times := Derive(s, plusOne, func(v int) int { return v * 100 })

	if times.Value() != 200 {
		t.Fatalf("times = %d, want 200", times.Value())
	}

	var got []int
	times.Subscribe(func(v int) { got = append(got, v) })

	base.Set(4)
	if !plusOne.Dirty() || !times.Dirty() {
		t.Error("dirty marking should reach the whole chain synchronously")
	}
	if times.Value() != 500 {
		t.Errorf("times = %d, want 500", times.Value())
	}

	turn(t, loop)
	if len(got) != 1 || got[0] != 500 {
		t.Errorf("observer calls = %v, want [500]", got)
	}
}

func TestDeriveAll(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	cells := []ReadonlyCell[int]{NewCell(s, 1), NewCell(s, 2), NewCell(s, 3)}
	sum := DeriveAll(s, cells, func(vs []int) int {
		total := 0
		for _, v := range vs {
			total += v
		}
		return total
	})

	if sum.Value() != 6 {
		t.Fatalf("sum = %d, want 6", sum.Value())
	}
	cells[1].(*Cell[int]).Set(20)
	if sum.Value() != 24 {
		t.Errorf("sum = %d, want 24", sum.Value())
	}
}

func TestDerive3(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	first := NewCell(s, "Ada")
	last := NewCell(s, "Lovelace")
	age := NewCell(s, 36)

	label := Derive3(s, first, last, age, func(f, l string, a int) string {
		return f + " " + l + " (" + string(rune('0'+a/10)) + string(rune('0'+a%10)) + ")"
	})

	if label.Value() != "Ada Lovelace (36)" {
		t.Errorf("label = %q", label.Value())
	}
}

func TestDerivedComputePanicPropagates(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	n := NewCell(s, 0)
	fail := true
	d := Derive(s, n, func(v int) int {
		if fail {
			panic("compute failed")
		}
		return v
	})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected the compute panic to reach the reader")
			}
		}()
		d.Value()
	}()

	if !d.Dirty() {
		t.Error("a failed compute should leave the cell dirty")
	}

	fail = false
	if d.Value() != 0 {
		t.Errorf("Value() = %d, want 0 after recovery", d.Value())
	}
}

func TestDerivedCircularReadPanics(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	var d *Derived[int]
	d = NewDerived(s, func() int { return d.Value() + 1 })

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrCircularDependency) {
			t.Errorf("recover() = %v, want ErrCircularDependency", r)
		}
	}()
	d.Value()
}

func TestDerivedComputePanicDuringFlushIsIsolated(t *testing.T) {
	s, loop, rec := newTestScheduler(t)
	n := NewCell(s, 0)
	bad := Derive(s, n, func(v int) int {
		if v > 0 {
			panic("bad value")
		}
		return v
	})
	_ = bad.Value()
	bad.Subscribe(func(int) {})

	calls := 0
	n.Subscribe(func(int) { calls++ })

	n.Set(1)
	turn(t, loop)

	if calls != 1 {
		t.Errorf("cell observer called %d times, want 1", calls)
	}
	if rec.failureCount() != 1 {
		t.Errorf("failures = %d, want 1", rec.failureCount())
	}
}

func TestDerivedDispose(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	n := NewCell(s, 1)
	d := Derive(s, n, func(v int) int { return v * 2 })
	_ = d.Value()

	calls := 0
	d.Subscribe(func(int) { calls++ })

	d.Dispose()
	d.Dispose()

	if got := s.Tracker().Len(n.ID()); got != 0 {
		t.Errorf("tracker entries after Dispose = %d, want 0", got)
	}

	n.Set(5)
	turn(t, loop)

	if calls != 0 {
		t.Errorf("disposed cell notified %d times", calls)
	}
	if d.Value() != 2 {
		t.Errorf("disposed cell should keep its cache, got %d", d.Value())
	}
}

func TestDerivedIsCollectedWithoutDispose(t *testing.T) {
	s, loop, _ := newTestScheduler(t)
	n := NewCell(s, 1)

	computes := 0
	func() {
		d := Derive(s, n, func(v int) int {
			computes++
			return v
		})
		_ = d.Value()
	}()

	if got := s.Tracker().Len(n.ID()); got != 1 {
		t.Fatalf("tracker entries = %d, want 1", got)
	}

	for i := 0; i < 3; i++ {
		runtime.GC()
	}

	n.Set(2)
	turn(t, loop)

	if got := s.Tracker().Len(n.ID()); got != 0 {
		t.Errorf("tracker entries after collection = %d, want 0", got)
	}
	if computes != 1 {
		t.Errorf("collected derived cell recomputed: %d", computes)
	}
}
