package store

import (
	"path/filepath"
	"sync"
	"time"
)

// Ban describes an active ban. A zero ExpiresAt means the ban is
// permanent pending staff review.
type Ban struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Offense   int       `json:"offense"` // 1-based position on the ban ladder
}

// Permanent reports whether the ban has no expiry.
func (b Ban) Permanent() bool { return b.ExpiresAt.IsZero() }

// Expired reports whether a temporary ban has run out at the given time.
func (b Ban) Expired(now time.Time) bool {
	return !b.Permanent() && now.After(b.ExpiresAt)
}

// BanStore persists active bans and the per-user offense count that
// drives the progressive ban ladder.
type BanStore struct {
	path string

	mu       sync.RWMutex
	active   map[string]Ban
	offenses map[string]int
}

type bansFile struct {
	Active   map[string]Ban `json:"active"`
	Offenses map[string]int `json:"offenses"`
}

// NewBanStore loads dataDir/bans.json.
func NewBanStore(dataDir string) (*BanStore, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	s := &BanStore{
		path:     filepath.Join(dataDir, "bans.json"),
		active:   make(map[string]Ban),
		offenses: make(map[string]int),
	}
	var f bansFile
	if _, err := readFile(s.path, &f); err != nil {
		return nil, err
	}
	if f.Active != nil {
		s.active = f.Active
	}
	if f.Offenses != nil {
		s.offenses = f.Offenses
	}
	return s, nil
}

// Get returns the user's active ban record, expired or not.
func (s *BanStore) Get(userID string) (Ban, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.active[userID]
	return b, ok
}

// Offenses returns how many bans the user has accumulated.
func (s *BanStore) Offenses(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offenses[userID]
}

// Put records a new ban, bumps the user's offense count, and persists.
func (s *BanStore) Put(b Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offenses[b.UserID]++
	b.Offense = s.offenses[b.UserID]
	s.active[b.UserID] = b
	return s.save()
}

// Lift removes the user's active ban. The offense count is kept so the
// next ban lands one rung higher.
func (s *BanStore) Lift(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[userID]; !ok {
		return nil
	}
	delete(s.active, userID)
	return s.save()
}

// Active returns a copy of all active bans.
func (s *BanStore) Active() []Ban {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ban, 0, len(s.active))
	for _, b := range s.active {
		out = append(out, b)
	}
	return out
}

// ExpiredAt returns user IDs whose temporary ban ran out at now.
func (s *BanStore) ExpiredAt(now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for userID, b := range s.active {
		if b.Expired(now) {
			out = append(out, userID)
		}
	}
	return out
}

func (s *BanStore) save() error {
	return writeAtomic(s.path, bansFile{Active: s.active, Offenses: s.offenses})
}
