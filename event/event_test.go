package event

import "testing"

func TestAddFiresAfterExactTicks(t *testing.T) {
	q := NewQueue()
	fired := false
	q.Add(1, func(arg int) { fired = true }, 10, 0)
	q.Advance(9)
	if fired {
		t.Fatal("fired too early")
	}
	q.Advance(1)
	if !fired {
		t.Fatal("expected fire at exact tick count")
	}
}

func TestDeltaOrderingMultipleEvents(t *testing.T) {
	q := NewQueue()
	var order []int
	q.Add(1, func(arg int) { order = append(order, arg) }, 30, 3)
	q.Add(2, func(arg int) { order = append(order, arg) }, 10, 1)
	q.Add(3, func(arg int) { order = append(order, arg) }, 20, 2)

	q.Advance(30)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("fire order = %v, want [1 2 3]", order)
	}
}

func TestCancelRemovesOnlyMatchingID(t *testing.T) {
	q := NewQueue()
	aFired, bFired := false, false
	q.Add(1, func(arg int) { aFired = true }, 10, 0)
	q.Add(2, func(arg int) { bFired = true }, 10, 0)
	q.Cancel(1)
	q.Advance(10)
	if aFired {
		t.Error("cancelled event fired")
	}
	if !bFired {
		t.Error("uncancelled event did not fire")
	}
}

func TestZeroTickRunsImmediately(t *testing.T) {
	q := NewQueue()
	fired := false
	q.Add(1, func(arg int) { fired = true }, 0, 0)
	if !fired {
		t.Error("zero-tick event should run synchronously")
	}
}
