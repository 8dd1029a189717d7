// Package handoff decides who answers a customer message: the AI
// responder or a human staffer. Every conversation is in exactly one
// ownership state, and staff activity opens a response window during
// which automated replies are deferred rather than dropped.
package handoff

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pandastore/supportbot/internal/activity"
	"github.com/pandastore/supportbot/internal/sched"
)

// State is the ownership state of a conversation.
type State int

const (
	// StateAIImmediate means the AI answers user messages right away.
	StateAIImmediate State = iota

	// StateStaffWindow means a staffer recently acted on the
	// conversation and automated replies hold off.
	StateStaffWindow

	// StateAIDeferredPending means a user wrote during the staff window
	// and an automated reply is armed to fire when the window expires.
	StateAIDeferredPending
)

func (s State) String() string {
	switch s {
	case StateAIImmediate:
		return "ai_immediate"
	case StateStaffWindow:
		return "staff_window"
	case StateAIDeferredPending:
		return "ai_deferred_pending"
	default:
		return "unknown"
	}
}

// Decision is the arbiter's verdict on an inbound user message.
type Decision int

const (
	// DecisionReplyNow: generate and deliver the automated reply
	// immediately.
	DecisionReplyNow Decision = iota

	// DecisionDeferred: a reply task has been armed; nothing to deliver
	// yet.
	DecisionDeferred
)

// DeferredFunc is invoked when a deferred reply comes due and staff
// still have not taken over. It must not block; the dispatcher
// re-enqueues the conversation onto its serial queue.
type DeferredFunc func(userID string)

// Arbiter owns the per-conversation state machine. Callers must
// serialize events for the same conversation (the dispatcher's per-user
// queues do this); events for different conversations may arrive
// concurrently.
type Arbiter struct {
	clock     sched.Clock
	scheduler *sched.Scheduler
	tracker   *activity.Tracker
	deferred  DeferredFunc

	mu      sync.Mutex
	window  time.Duration
	states  map[string]State
	pending map[string]pendingReply
}

// pendingReply is an armed deferred reply. The window in force when the
// task was armed travels with it: SetWindow must not move deadlines
// that are already set, and fire re-validates against this window, not
// the current one.
type pendingReply struct {
	task   *sched.Task
	window time.Duration
}

// New creates an arbiter. window is the staff response window; deferred
// is called when a deferred automated reply becomes due.
func New(clock sched.Clock, scheduler *sched.Scheduler, tracker *activity.Tracker, window time.Duration, deferred DeferredFunc) *Arbiter {
	return &Arbiter{
		clock:     clock,
		scheduler: scheduler,
		tracker:   tracker,
		deferred:  deferred,
		window:    window,
		states:    make(map[string]State),
		pending:   make(map[string]pendingReply),
	}
}

// Window returns the current staff response window.
func (a *Arbiter) Window() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.window
}

// SetWindow changes the staff response window. Tasks already armed keep
// their original deadline; only tasks armed afterwards use the new
// value.
func (a *Arbiter) SetWindow(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d == a.window {
		return
	}
	slog.Info("handoff: response window changed", "old", a.window, "new", d)
	a.window = d
}

// OnUserMessage records an inbound user message and decides who
// answers. Inside the staff window the reply is deferred; any
// previously armed reply for the conversation is cancelled first and
// replaced by one carrying the newest message's deadline.
func (a *Arbiter) OnUserMessage(userID string) Decision {
	now := a.clock.Now()
	a.tracker.RecordUserMessage(userID, now)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.tracker.IsWithinStaffWindow(userID, now, a.window) {
		// Outside the window the newest message supersedes any reply
		// still armed from an earlier one.
		a.cancelPendingLocked(userID)
		a.states[userID] = StateAIImmediate
		return DecisionReplyNow
	}

	expiry := a.tracker.Get(userID).LastStaffActivityAt.Add(a.window)
	a.cancelPendingLocked(userID)
	a.armLocked(userID, expiry.Sub(now), a.window)
	a.states[userID] = StateAIDeferredPending
	slog.Debug("handoff: reply deferred",
		"user_id", userID, "due", expiry)
	return DecisionDeferred
}

// OnStaffMessage records staff activity on the conversation. Any armed
// deferred reply is cancelled; the staffer has taken over.
func (a *Arbiter) OnStaffMessage(userID string) {
	now := a.clock.Now()
	a.tracker.RecordStaffActivity(userID, now)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelPendingLocked(userID)
	a.states[userID] = StateStaffWindow
}

// GetConversationState returns the conversation's ownership state. An
// expired staff window reads as StateAIImmediate.
func (a *Arbiter) GetConversationState(userID string) State {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked(userID, now)
}

// Snapshot returns the ownership state of every known conversation.
func (a *Arbiter) Snapshot() map[string]State {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]State, len(a.states))
	for id := range a.states {
		out[id] = a.stateLocked(id, now)
	}
	return out
}

// Shutdown cancels all armed deferred replies.
func (a *Arbiter) Shutdown() {
	a.mu.Lock()
	tasks := make([]*sched.Task, 0, len(a.pending))
	for id, p := range a.pending {
		tasks = append(tasks, p.task)
		delete(a.pending, id)
	}
	a.mu.Unlock()
	for _, t := range tasks {
		a.scheduler.Cancel(t)
	}
}

func (a *Arbiter) stateLocked(userID string, now time.Time) State {
	s, ok := a.states[userID]
	if !ok {
		return StateAIImmediate
	}
	if s == StateStaffWindow && !a.tracker.IsWithinStaffWindow(userID, now, a.window) {
		return StateAIImmediate
	}
	return s
}

// cancelPendingLocked settles the conversation's armed task, if any.
// Cancellation always precedes arming a replacement so there is never a
// moment with two live tasks for one conversation.
func (a *Arbiter) cancelPendingLocked(userID string) {
	if p, ok := a.pending[userID]; ok {
		delete(a.pending, userID)
		a.scheduler.Cancel(p.task)
	}
}

func (a *Arbiter) armLocked(userID string, delay time.Duration, window time.Duration) {
	task := a.scheduler.ScheduleAfter(userID, delay, func() {
		a.fire(userID)
	})
	a.pending[userID] = pendingReply{task: task, window: window}
}

// fire runs when a deferred reply comes due. Staff may have acted again
// between arming and firing; in that case the reply re-arms against the
// current staff activity, keeping the window it was armed with.
func (a *Arbiter) fire(userID string) {
	now := a.clock.Now()

	a.mu.Lock()
	window := a.window
	if p, ok := a.pending[userID]; ok {
		window = p.window
	}
	delete(a.pending, userID)

	expiry := a.tracker.Get(userID).LastStaffActivityAt.Add(window)
	if now.Before(expiry) {
		a.armLocked(userID, expiry.Sub(now), window)
		a.mu.Unlock()
		slog.Debug("handoff: deferred reply re-armed",
			"user_id", userID, "due", expiry)
		return
	}

	a.states[userID] = StateAIImmediate
	a.mu.Unlock()

	slog.Debug("handoff: deferred reply due", "user_id", userID)
	a.deferred(userID)
}
