package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const threadsSchemaVersion = 2

// ThreadRecord is one user's staff-workspace thread.
type ThreadRecord struct {
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadStore is the durable userID → threadID directory. Earlier
// deployments stored the mapping in two legacy shapes (a bare numeric
// thread id, or an object with a numeric thread_id); both are migrated
// once on load and rewritten in the current schema.
type ThreadStore struct {
	path string

	mu      sync.RWMutex
	threads map[string]ThreadRecord
	byID    map[string]string // threadID → userID
}

type threadsFile struct {
	Version int                     `json:"version"`
	Threads map[string]ThreadRecord `json:"threads"`
}

// NewThreadStore loads (and migrates, if needed) the thread directory
// from dataDir/threads.json.
func NewThreadStore(dataDir string) (*ThreadStore, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	s := &ThreadStore{
		path:    filepath.Join(dataDir, "threads.json"),
		threads: make(map[string]ThreadRecord),
		byID:    make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ThreadStore) load() error {
	var f threadsFile
	ok, err := readFile(s.path, &f)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if f.Version == threadsSchemaVersion {
		if f.Threads != nil {
			s.threads = f.Threads
		}
		s.rebuildIndex()
		return nil
	}
	if f.Version != 0 {
		return fmt.Errorf("threads.json: unsupported schema version %d", f.Version)
	}

	// Version 0 means a pre-versioning file; migrate it in place.
	migrated, err := s.loadLegacy()
	if err != nil {
		return err
	}
	s.threads = migrated
	s.rebuildIndex()
	slog.Info("thread store: migrated legacy directory", "entries", len(migrated))
	return s.save()
}

// loadLegacy parses the two pre-versioning layouts:
//
//	{"12345": 77}
//	{"12345": {"thread_id": 77}}
func (s *ThreadStore) loadLegacy() (map[string]ThreadRecord, error) {
	var raw map[string]json.RawMessage
	ok, err := readFile(s.path, &raw)
	if err != nil || !ok {
		return nil, err
	}

	out := make(map[string]ThreadRecord, len(raw))
	for userID, v := range raw {
		var id int64
		if err := json.Unmarshal(v, &id); err == nil {
			out[userID] = ThreadRecord{ThreadID: strconv.FormatInt(id, 10)}
			continue
		}
		var obj struct {
			ThreadID int64 `json:"thread_id"`
		}
		if err := json.Unmarshal(v, &obj); err == nil && obj.ThreadID != 0 {
			out[userID] = ThreadRecord{ThreadID: strconv.FormatInt(obj.ThreadID, 10)}
			continue
		}
		return nil, fmt.Errorf("threads.json: unrecognized entry for user %s", userID)
	}
	return out, nil
}

func (s *ThreadStore) rebuildIndex() {
	s.byID = make(map[string]string, len(s.threads))
	for userID, r := range s.threads {
		s.byID[r.ThreadID] = userID
	}
}

// Get returns the thread mapped to userID.
func (s *ThreadStore) Get(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.threads[userID]
	return r.ThreadID, ok
}

// UserForThread is the reverse lookup used to attribute staff messages
// posted inside a thread back to the customer.
func (s *ThreadStore) UserForThread(threadID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byID[threadID]
	return userID, ok
}

// Put records the mapping and persists it.
func (s *ThreadStore) Put(userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.threads[userID]; ok {
		delete(s.byID, old.ThreadID)
	}
	s.threads[userID] = ThreadRecord{ThreadID: threadID, CreatedAt: time.Now().UTC()}
	s.byID[threadID] = userID
	return s.save()
}

// Delete removes the mapping for userID, if any, and persists.
func (s *ThreadStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.threads[userID]
	if !ok {
		return nil
	}
	delete(s.threads, userID)
	delete(s.byID, r.ThreadID)
	return s.save()
}

// Len returns the number of mapped users.
func (s *ThreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *ThreadStore) save() error {
	return writeAtomic(s.path, threadsFile{
		Version: threadsSchemaVersion,
		Threads: s.threads,
	})
}
