package testutil

import (
	"sync"

	"attach-go/internal/intake"
)

// MemoryCache is an in-memory intake.Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]intake.CacheEntry

	// GetErr and AddErr, when set, are returned by the respective methods.
	GetErr error
	AddErr error
}

var _ intake.Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]intake.CacheEntry)}
}

func (c *MemoryCache) Get(hash string) (*intake.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	e, ok := c.entries[hash]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *MemoryCache) Add(hash string, entry intake.CacheEntry) (*intake.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AddErr != nil {
		return nil, c.AddErr
	}
	if existing, ok := c.entries[hash]; ok && existing.URL != "" {
		return &existing, nil
	}
	c.entries[hash] = entry
	return &entry, nil
}

// Put stores entry under hash without any checks.
func (c *MemoryCache) Put(hash string, entry intake.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = entry
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
