package store

import (
	"path/filepath"
	"sync"
)

// CodeStore holds the pool of redeem codes handed out after a confirmed
// payment, keyed by product ID.
type CodeStore struct {
	path string

	mu    sync.Mutex
	codes map[string][]string
}

// NewCodeStore loads dataDir/codes.json.
func NewCodeStore(dataDir string) (*CodeStore, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	s := &CodeStore{
		path:  filepath.Join(dataDir, "codes.json"),
		codes: make(map[string][]string),
	}
	if _, err := readFile(s.path, &s.codes); err != nil {
		return nil, err
	}
	return s, nil
}

// Pop removes and returns one unused code for the product. ok is false
// when the pool is empty.
func (s *CodeStore) Pop(productID string) (code string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.codes[productID]
	if len(pool) == 0 {
		return "", false, nil
	}
	code = pool[0]
	s.codes[productID] = pool[1:]
	return code, true, s.save()
}

// Add appends codes to the product's pool and persists.
func (s *CodeStore) Add(productID string, codes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[productID] = append(s.codes[productID], codes...)
	return s.save()
}

// Remaining returns the number of unused codes for the product.
func (s *CodeStore) Remaining(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes[productID])
}

func (s *CodeStore) save() error {
	return writeAtomic(s.path, s.codes)
}
