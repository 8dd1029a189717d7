package sched

import (
	"testing"
	"time"
)

func TestScheduleAfterFires(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := New(clock)

	fired := 0
	s.ScheduleAfter("u1", 10*time.Second, func() { fired++ })

	clock.Advance(9 * time.Second)
	if fired != 0 {
		t.Fatalf("task fired early: %d", fired)
	}
	clock.Advance(1 * time.Second)
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
	if s.Live("u1") {
		t.Error("fired task still in bookkeeping")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := New(clock)

	fired := false
	task := s.ScheduleAfter("u1", 10*time.Second, func() { fired = true })
	s.Cancel(task)

	clock.Advance(time.Minute)
	if fired {
		t.Error("cancelled task fired")
	}
	if s.Live("u1") {
		t.Error("cancelled task still in bookkeeping")
	}
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := New(clock)

	fired := 0
	task := s.ScheduleAfter("u1", time.Second, func() { fired++ })

	clock.Advance(2 * time.Second)
	s.Cancel(task) // must not panic or double-settle
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
}

// One live task per conversation: replacing without cancel stops the
// stale timer so only the newest action can run.
func TestReplaceKeepsSingleLiveTask(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := New(clock)

	var order []string
	first := s.ScheduleAfter("u1", 5*time.Second, func() { order = append(order, "first") })
	s.Cancel(first)
	s.ScheduleAfter("u1", 10*time.Second, func() { order = append(order, "second") })

	if got := clock.PendingTimers(); got != 1 {
		t.Fatalf("expected 1 pending timer, got %d", got)
	}

	clock.Advance(time.Minute)
	if len(order) != 1 || order[0] != "second" {
		t.Fatalf("unexpected fire order: %v", order)
	}
}

func TestIndependentConversations(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := New(clock)

	fires := map[string]int{}
	s.ScheduleAfter("u1", 5*time.Second, func() { fires["u1"]++ })
	s.ScheduleAfter("u2", 8*time.Second, func() { fires["u2"]++ })

	clock.Advance(6 * time.Second)
	if fires["u1"] != 1 || fires["u2"] != 0 {
		t.Fatalf("unexpected fires after 6s: %v", fires)
	}
	clock.Advance(2 * time.Second)
	if fires["u2"] != 1 {
		t.Fatalf("u2 did not fire: %v", fires)
	}
}

func TestShutdownCancelsAll(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := New(clock)

	fired := 0
	s.ScheduleAfter("u1", time.Second, func() { fired++ })
	s.ScheduleAfter("u2", time.Second, func() { fired++ })

	s.Shutdown()
	clock.Advance(time.Minute)

	if fired != 0 {
		t.Fatalf("tasks fired after shutdown: %d", fired)
	}
	if s.Live("u1") || s.Live("u2") {
		t.Error("tasks survived shutdown")
	}
}
