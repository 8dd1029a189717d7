package store

import (
	"path/filepath"
	"sync"
)

// Plan is one purchasable product.
type Plan struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	PriceUSD    float64 `json:"price_usd"`
	Description string  `json:"description,omitempty"`
}

// PricingStore reads the staff-maintained plan list. Staff edit
// pricing.json by hand; the bot only reads it.
type PricingStore struct {
	path string

	mu    sync.RWMutex
	plans []Plan
}

// NewPricingStore loads dataDir/pricing.json.
func NewPricingStore(dataDir string) (*PricingStore, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	s := &PricingStore{path: filepath.Join(dataDir, "pricing.json")}
	if _, err := readFile(s.path, &s.plans); err != nil {
		return nil, err
	}
	return s, nil
}

// Plans returns a copy of the plan list.
func (s *PricingStore) Plans() []Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plan, len(s.plans))
	copy(out, s.plans)
	return out
}

// Find returns the plan with the given ID.
func (s *PricingStore) Find(planID string) (Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plans {
		if p.ID == planID {
			return p, true
		}
	}
	return Plan{}, false
}

// Reload re-reads pricing.json, picking up staff edits.
func (s *PricingStore) Reload() error {
	var plans []Plan
	if _, err := readFile(s.path, &plans); err != nil {
		return err
	}
	s.mu.Lock()
	s.plans = plans
	s.mu.Unlock()
	return nil
}
