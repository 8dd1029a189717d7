package store

import (
	"path/filepath"
	"sync"
	"time"
)

// Message is one turn of a conversation history.
type Message struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// HistoryStore keeps a bounded per-user conversation history for prompt
// context. Old turns fall off the front once the cap is reached.
type HistoryStore struct {
	path string
	cap  int

	mu        sync.RWMutex
	histories map[string][]Message
}

// NewHistoryStore loads dataDir/histories.json. cap is the maximum
// number of retained messages per user; zero or negative means
// unbounded.
func NewHistoryStore(dataDir string, cap int) (*HistoryStore, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	s := &HistoryStore{
		path:      filepath.Join(dataDir, "histories.json"),
		cap:       cap,
		histories: make(map[string][]Message),
	}
	if _, err := readFile(s.path, &s.histories); err != nil {
		return nil, err
	}
	return s, nil
}

// Append adds a turn to the user's history, trimming to the cap, and
// persists.
func (s *HistoryStore) Append(userID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.histories[userID], Message{Role: role, Content: content, At: time.Now().UTC()})
	if s.cap > 0 && len(h) > s.cap {
		h = h[len(h)-s.cap:]
	}
	s.histories[userID] = h
	return s.save()
}

// Get returns a copy of the user's history, oldest first.
func (s *HistoryStore) Get(userID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.histories[userID]
	out := make([]Message, len(h))
	copy(out, h)
	return out
}

// Clear drops the user's history and persists.
func (s *HistoryStore) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[userID]; !ok {
		return nil
	}
	delete(s.histories, userID)
	return s.save()
}

// ActiveSince returns the IDs of users whose latest message is newer
// than cutoff. Used by the daily staff digest.
func (s *HistoryStore) ActiveSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for userID, h := range s.histories {
		if len(h) > 0 && h[len(h)-1].At.After(cutoff) {
			out = append(out, userID)
		}
	}
	return out
}

func (s *HistoryStore) save() error {
	return writeAtomic(s.path, s.histories)
}
