package security

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

const defaultAttributeTTL = 30 * time.Second

// cacheEntry is a cached inspection result
type cacheEntry struct {
	path    string
	attrs   Attributes
	err     error
	expires time.Time
}

// AttributeCache memoizes an AttributeInspector for the length of a sweep.
// Concurrent lookups of the same path share one lstat call.
type AttributeCache struct {
	inspector AttributeInspector
	mu        sync.RWMutex
	entries   map[uint64]cacheEntry
	maxSize   int
	ttl       time.Duration
	group     singleflight.Group
	now       func() time.Time
}

// NewAttributeCache wraps inspector with a bounded TTL cache
func NewAttributeCache(inspector AttributeInspector, maxSize int, ttl time.Duration) *AttributeCache {
	return &AttributeCache{
		inspector: inspector,
		entries:   make(map[uint64]cacheEntry, min(maxSize, 1024)),
		maxSize:   maxSize,
		ttl:       ttl,
		now:       time.Now,
	}
}

func hashPath(path string) uint64 {
	return xxhash.Sum64String(path)
}

// Inspect implements AttributeInspector
func (c *AttributeCache) Inspect(path string) (Attributes, error) {
	path = filepath.Clean(path)
	key := hashPath(path)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && entry.path == path && c.now().Before(entry.expires) {
		return entry.attrs, entry.err
	}

	v, _, _ := c.group.Do(path, func() (any, error) {
		attrs, err := c.inspector.Inspect(path)
		c.store(key, cacheEntry{path: path, attrs: attrs, err: err, expires: c.now().Add(c.ttl)})
		return cacheEntry{attrs: attrs, err: err}, nil
	})

	result := v.(cacheEntry)
	return result.attrs, result.err
}

func (c *AttributeCache) store(key uint64, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = entry
}

// evictLocked drops expired entries, or an arbitrary one when none expired
func (c *AttributeCache) evictLocked() {
	now := c.now()
	evicted := false
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			evicted = true
		}
	}
	if evicted {
		return
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}

// Invalidate forgets path, e.g. after it was deleted
func (c *AttributeCache) Invalidate(path string) {
	path = filepath.Clean(path)
	c.mu.Lock()
	delete(c.entries, hashPath(path))
	c.mu.Unlock()
}

// Len returns the number of cached entries
func (c *AttributeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
