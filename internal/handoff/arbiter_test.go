package handoff

import (
	"sync"
	"testing"
	"time"

	"github.com/pandastore/supportbot/internal/activity"
	"github.com/pandastore/supportbot/internal/sched"
)

const testWindow = 20 * time.Second

type fixture struct {
	clock   *sched.ManualClock
	arbiter *Arbiter

	mu    sync.Mutex
	fires []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: sched.NewManualClock(time.Unix(0, 0))}
	scheduler := sched.New(f.clock)
	f.arbiter = New(f.clock, scheduler, activity.NewTracker(), testWindow, func(userID string) {
		f.mu.Lock()
		f.fires = append(f.fires, userID)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) fireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fires)
}

func TestUserMessageWithNoStaffActivityRepliesNow(t *testing.T) {
	f := newFixture(t)

	if d := f.arbiter.OnUserMessage("u1"); d != DecisionReplyNow {
		t.Fatalf("decision = %v, want DecisionReplyNow", d)
	}
	if s := f.arbiter.GetConversationState("u1"); s != StateAIImmediate {
		t.Errorf("state = %v, want ai_immediate", s)
	}
}

// Staff replies, then the user writes inside the response window: the
// automated reply is deferred and goes out only when the window ends.
func TestUserMessageInsideStaffWindowIsDeferred(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(5 * time.Second)

	if d := f.arbiter.OnUserMessage("u1"); d != DecisionDeferred {
		t.Fatalf("decision = %v, want DecisionDeferred", d)
	}
	if s := f.arbiter.GetConversationState("u1"); s != StateAIDeferredPending {
		t.Errorf("state = %v, want ai_deferred_pending", s)
	}

	// Window ends 20s after the staff message, so 15s from now.
	f.clock.Advance(14 * time.Second)
	if f.fireCount() != 0 {
		t.Fatal("deferred reply fired before window expiry")
	}
	f.clock.Advance(1 * time.Second)
	if f.fireCount() != 1 {
		t.Fatalf("fires = %d, want 1", f.fireCount())
	}
	if s := f.arbiter.GetConversationState("u1"); s != StateAIImmediate {
		t.Errorf("state after fire = %v, want ai_immediate", s)
	}
}

func TestUserMessageAfterWindowExpiryRepliesNow(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(testWindow)

	if d := f.arbiter.OnUserMessage("u1"); d != DecisionReplyNow {
		t.Fatalf("decision = %v, want DecisionReplyNow", d)
	}
}

// Several user messages inside one window collapse to a single deferred
// reply: each new message replaces the armed task.
func TestRepeatedUserMessagesReplaceDeferredTask(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(2 * time.Second)
	f.arbiter.OnUserMessage("u1")
	f.clock.Advance(3 * time.Second)
	f.arbiter.OnUserMessage("u1")
	f.clock.Advance(3 * time.Second)
	f.arbiter.OnUserMessage("u1")

	if got := f.clock.PendingTimers(); got != 1 {
		t.Fatalf("pending timers = %d, want 1", got)
	}

	f.clock.Advance(time.Minute)
	if f.fireCount() != 1 {
		t.Fatalf("fires = %d, want exactly 1", f.fireCount())
	}
}

// A staff message while a deferred reply is armed cancels it: the
// staffer has taken over and the automated answer must never go out.
func TestStaffMessageCancelsDeferredReply(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(5 * time.Second)
	f.arbiter.OnUserMessage("u1")
	f.clock.Advance(5 * time.Second)
	f.arbiter.OnStaffMessage("u1")

	if s := f.arbiter.GetConversationState("u1"); s != StateStaffWindow {
		t.Errorf("state = %v, want staff_window", s)
	}

	f.clock.Advance(time.Hour)
	if f.fireCount() != 0 {
		t.Fatalf("cancelled deferred reply fired %d times", f.fireCount())
	}
}

// Staff activity recorded without going through OnStaffMessage (e.g. a
// typing notification) still holds back a due reply: the fire
// re-validates against the current staff timestamp and re-arms.
func TestDeferredFireReArmsOnFreshStaffActivity(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(5 * time.Second)
	f.arbiter.OnUserMessage("u1") // due at t=20s

	// Fresh staff activity at t=15s pushes the window to t=35s.
	f.clock.Advance(10 * time.Second)
	f.arbiter.tracker.RecordStaffActivity("u1", f.clock.Now())

	f.clock.Advance(5 * time.Second) // t=20s, original deadline
	if f.fireCount() != 0 {
		t.Fatal("reply fired despite fresh staff activity")
	}
	if got := f.clock.PendingTimers(); got != 1 {
		t.Fatalf("pending timers after re-arm = %d, want 1", got)
	}

	f.clock.Advance(15 * time.Second) // t=35s
	if f.fireCount() != 1 {
		t.Fatalf("fires = %d, want 1 after extended window", f.fireCount())
	}
}

func TestStaffWindowStateExpiresToImmediate(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	if s := f.arbiter.GetConversationState("u1"); s != StateStaffWindow {
		t.Fatalf("state = %v, want staff_window", s)
	}

	f.clock.Advance(testWindow)
	if s := f.arbiter.GetConversationState("u1"); s != StateAIImmediate {
		t.Errorf("state after expiry = %v, want ai_immediate", s)
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(time.Second)

	if d := f.arbiter.OnUserMessage("u1"); d != DecisionDeferred {
		t.Fatalf("u1 decision = %v, want DecisionDeferred", d)
	}
	if d := f.arbiter.OnUserMessage("u2"); d != DecisionReplyNow {
		t.Fatalf("u2 decision = %v, want DecisionReplyNow", d)
	}
}

// A window change applies to tasks armed afterwards; already armed
// tasks keep their deadline.
func TestSetWindowAffectsOnlyNewTasks(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(time.Second)
	f.arbiter.OnUserMessage("u1") // due at t=20s

	f.arbiter.SetWindow(time.Minute)

	f.clock.Advance(19 * time.Second)
	if f.fireCount() != 1 {
		t.Fatalf("armed task did not keep its original deadline, fires = %d", f.fireCount())
	}

	// New round under the 60s window.
	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(time.Second)
	f.arbiter.OnUserMessage("u1")
	f.clock.Advance(30 * time.Second)
	if f.fireCount() != 1 {
		t.Fatal("task under the new window fired at the old deadline")
	}
	f.clock.Advance(29 * time.Second)
	if f.fireCount() != 2 {
		t.Fatalf("fires = %d, want 2", f.fireCount())
	}
}

// A task armed before a window change keeps its window across re-arms
// too: fresh staff activity extends the deadline by the window captured
// at arm time, not by the enlarged one.
func TestReArmedTaskKeepsCapturedWindow(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.clock.Advance(5 * time.Second)
	f.arbiter.OnUserMessage("u1") // due at t=20s under the 20s window

	f.arbiter.SetWindow(time.Minute)

	// Fresh staff activity at t=15s; with the captured 20s window the
	// re-armed reply is due at t=35s, not t=75s.
	f.clock.Advance(10 * time.Second)
	f.arbiter.tracker.RecordStaffActivity("u1", f.clock.Now())

	f.clock.Advance(5 * time.Second) // t=20s, original deadline
	if f.fireCount() != 0 {
		t.Fatal("reply fired despite fresh staff activity")
	}
	f.clock.Advance(20 * time.Second) // t=40s
	if f.fireCount() != 1 {
		t.Fatalf("fires = %d, want 1 at the re-armed deadline", f.fireCount())
	}
}

func TestShutdownCancelsArmedReplies(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnStaffMessage("u1")
	f.arbiter.OnStaffMessage("u2")
	f.clock.Advance(time.Second)
	f.arbiter.OnUserMessage("u1")
	f.arbiter.OnUserMessage("u2")

	f.arbiter.Shutdown()
	f.clock.Advance(time.Hour)
	if f.fireCount() != 0 {
		t.Fatalf("fires after shutdown = %d, want 0", f.fireCount())
	}
}

func TestSnapshotReportsAllConversations(t *testing.T) {
	f := newFixture(t)

	f.arbiter.OnUserMessage("u1")
	f.arbiter.OnStaffMessage("u2")
	f.clock.Advance(time.Second)
	f.arbiter.OnStaffMessage("u3")
	f.arbiter.OnUserMessage("u3")

	snap := f.arbiter.Snapshot()
	want := map[string]State{
		"u1": StateAIImmediate,
		"u2": StateStaffWindow,
		"u3": StateAIDeferredPending,
	}
	for id, s := range want {
		if snap[id] != s {
			t.Errorf("snapshot[%s] = %v, want %v", id, snap[id], s)
		}
	}
}
