// Package knowledge captures text from the product website so the
// responder can ground its answers in real site content.
package knowledge

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"encoding/json"
	"fmt"
	"os"
)

// contextBudget caps how much crawled text is injected into the system
// prompt.
const contextBudget = 6000

// Base is the crawled page cache, persisted as one JSON file mapping
// URL to extracted text.
type Base struct {
	path string

	mu    sync.RWMutex
	pages map[string]string
}

// Load reads dataDir/knowledge.json, creating an empty base if absent.
func Load(dataDir string) (*Base, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	b := &Base{
		path:  filepath.Join(dataDir, "knowledge.json"),
		pages: make(map[string]string),
	}
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &b.pages); err != nil {
		return nil, fmt.Errorf("parse knowledge.json: %w", err)
	}
	return b, nil
}

// Put stores a page's extracted text.
func (b *Base) Put(url, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[url] = text
}

// Len returns the number of cached pages.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pages)
}

// Save writes the cache to disk.
func (b *Base) Save() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, err := json.MarshalIndent(b.pages, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o644)
}

// Context returns cached page text concatenated in stable URL order,
// truncated to the prompt budget.
func (b *Base) Context() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	urls := make([]string, 0, len(b.pages))
	for u := range b.pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var sb strings.Builder
	for _, u := range urls {
		text := strings.TrimSpace(b.pages[u])
		if text == "" {
			continue
		}
		if sb.Len()+len(text) > contextBudget {
			remain := contextBudget - sb.Len()
			if remain > 0 {
				sb.WriteString(text[:remain])
			}
			break
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}
