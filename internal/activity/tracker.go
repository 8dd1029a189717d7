// Package activity records last-seen timestamps per conversation: when
// the user last wrote and when staff last acted. It holds no timers and
// has no side effects beyond timestamp storage.
package activity

import (
	"sync"
	"time"
)

// Record holds the two timestamps tracked per conversation. Zero values
// mean "never".
type Record struct {
	LastUserMessageAt   time.Time
	LastStaffActivityAt time.Time
}

// Tracker is a concurrent timestamp store keyed by user ID.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*Record)}
}

// RecordUserMessage stores the time of an inbound user message.
// User messages never advance staff activity.
func (t *Tracker) RecordUserMessage(userID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.getLocked(userID).LastUserMessageAt = at
}

// RecordStaffActivity stores the time of a staff action targeting the
// conversation.
func (t *Tracker) RecordStaffActivity(userID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.getLocked(userID).LastStaffActivityAt = at
}

// IsWithinStaffWindow reports whether staff acted strictly less than
// window before at. A conversation staff never touched is never within
// the window.
func (t *Tracker) IsWithinStaffWindow(userID string, at time.Time, window time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[userID]
	if !ok || r.LastStaffActivityAt.IsZero() {
		return false
	}
	return at.Sub(r.LastStaffActivityAt) < window
}

// Get returns a copy of the record for userID (zero record if unknown).
func (t *Tracker) Get(userID string) Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.records[userID]; ok {
		return *r
	}
	return Record{}
}

func (t *Tracker) getLocked(userID string) *Record {
	r, ok := t.records[userID]
	if !ok {
		r = &Record{}
		t.records[userID] = r
	}
	return r
}
