package template

import (
	"os"
	"sync"
	"time"

	"github.com/ironsheep/omr-reader/internal/omr"
)

// Cache keeps parsed templates keyed by file path so a long-running server
// does not re-parse the same metadata document on every read.
//
// An entry is reused only while the file's modification time and size are
// unchanged; an edited document is parsed again on the next Load. Templates
// are immutable after parsing, so the returned pointer may be shared freely.
//
// Cache is safe for concurrent use.
//
// # Example Usage
//
//	cache := template.NewCache()
//	tpl, err := cache.Load("/templates/exam_a.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	tpl     *Template
	modTime time.Time
	size    int64
}

// NewCache creates an empty template cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Load returns the parsed template at path, parsing it on first use or when
// the file changed since it was cached. Parse errors are not cached.
func (c *Cache) Load(path string) (*Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		c.Evict(path)
		return nil, omr.InvalidMetadataf("metadata file not found: %q", path)
	}

	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.tpl, nil
	}

	tpl, err := LoadFile(path)
	if err != nil {
		c.Evict(path)
		return nil, err
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{tpl: tpl, modTime: info.ModTime(), size: info.Size()}
	c.mu.Unlock()
	return tpl, nil
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Evict removes path from the cache. Unknown paths are ignored.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Clear drops every cached template.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
