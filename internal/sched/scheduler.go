// Package sched provides the delayed-task primitive behind deferred
// automated replies: one cancellable task per conversation, with
// cancel-and-replace discipline enforced by the caller (the arbiter).
package sched

import (
	"log/slog"
	"sync"
	"time"
)

// Task is a handle to a scheduled action. A task fires at most once;
// cancellation and firing are mutually exclusive.
type Task struct {
	conversationID string
	timer          Timer
	done           bool // fired or cancelled; guarded by Scheduler.mu
}

// ConversationID returns the conversation the task belongs to.
func (t *Task) ConversationID() string { return t.conversationID }

// Scheduler owns the per-conversation task table. Many conversations
// register and cancel concurrently; the table is the only state shared
// across conversations.
type Scheduler struct {
	clock Clock

	mu    sync.Mutex
	tasks map[string]*Task
}

// New creates a scheduler backed by the given clock.
func New(clock Clock) *Scheduler {
	return &Scheduler{
		clock: clock,
		tasks: make(map[string]*Task),
	}
}

// ScheduleAfter arms fn to run after delay for the given conversation.
// The caller must have cancelled any previous task for the conversation
// first; if one is still live it is logged as an invariant slip and
// replaced (the stale timer is stopped).
func (s *Scheduler) ScheduleAfter(conversationID string, delay time.Duration, fn func()) *Task {
	t := &Task{conversationID: conversationID}

	s.mu.Lock()
	if prev, ok := s.tasks[conversationID]; ok && !prev.done {
		slog.Warn("scheduler: replacing live task without cancel",
			"conversation_id", conversationID)
		prev.done = true
		prev.timer.Stop()
	}
	s.tasks[conversationID] = t
	s.mu.Unlock()

	t.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		// The task may have been cancelled or replaced between the
		// timer firing and this lock acquisition; exactly one of
		// {cancel, fire} may win.
		if s.tasks[conversationID] != t || t.done {
			s.mu.Unlock()
			return
		}
		t.done = true
		delete(s.tasks, conversationID)
		s.mu.Unlock()

		fn()
	})

	return t
}

// Cancel stops a task before it fires. Cancelling a task that already
// fired (or was already cancelled) is a no-op: the race is expected and
// logged at debug level only.
func (s *Scheduler) Cancel(t *Task) {
	if t == nil {
		return
	}

	s.mu.Lock()
	if s.tasks[t.conversationID] != t || t.done {
		s.mu.Unlock()
		slog.Debug("scheduler: cancel on settled task",
			"conversation_id", t.conversationID)
		return
	}
	t.done = true
	delete(s.tasks, t.conversationID)
	s.mu.Unlock()

	t.timer.Stop()
}

// Live reports whether a task is currently armed for the conversation.
func (s *Scheduler) Live(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[conversationID]
	return ok
}

// Shutdown cancels all outstanding tasks. Tasks that fire concurrently
// with shutdown are allowed to complete; losing a deferred reply at
// shutdown is acceptable (at-most-once delivery).
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	pending := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		s.Cancel(t)
	}

	if len(pending) > 0 {
		slog.Info("scheduler: cancelled outstanding tasks on shutdown", "count", len(pending))
	}
}
