package token

import (
	"sync"
	"time"
)

// Cache is the in-process token cache consulted before the durable store.
// It is a pure optimization: the gateway runs as independent stateless
// invocations and any given instance may see a cold cache. Implementations
// may be disabled entirely by passing a nil Cache to the Manager.
type Cache interface {
	// Get returns the cached record if one is present and usable at now.
	Get(now time.Time) (Record, bool)
	// Put replaces the cached record.
	Put(record Record)
	// Clear drops the cached record.
	Clear()
}

// MemoryCache is the default mutex-guarded single-record cache.
type MemoryCache struct {
	mu     sync.RWMutex
	record Record
	set    bool
}

// NewMemoryCache creates an empty memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the cached record when it is still usable.
func (c *MemoryCache) Get(now time.Time) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set || !c.record.Usable(now) {
		return Record{}, false
	}
	return c.record, true
}

// Put replaces the cached record.
func (c *MemoryCache) Put(record Record) {
	c.mu.Lock()
	c.record = record
	c.set = true
	c.mu.Unlock()
}

// Clear drops the cached record.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.set = false
	c.record = Record{}
	c.mu.Unlock()
}
