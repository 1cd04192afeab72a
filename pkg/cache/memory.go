package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// DefaultMemoryCacheEntries bounds the in-memory cache.
const DefaultMemoryCacheEntries = 1024

type memoryEntry struct {
	query     *models.CompiledQuery
	expiresAt time.Time
}

// MemoryCache is a process-local CompiledQueryCache. When full, expired
// entries are dropped first and then the entry closest to expiry.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

var _ CompiledQueryCache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache holding at most maxEntries queries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryCacheEntries
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*models.CompiledQuery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.query, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, q *models.CompiledQuery, ttl time.Duration) error {
	if ttl <= 0 || q == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[key] = memoryEntry{query: q, expiresAt: now.Add(ttl)}
	return nil
}

// evict removes expired entries, or the soonest-to-expire one if none are.
// Caller must hold c.mu.
func (c *MemoryCache) evict(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	removed := false
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed = true
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = key, e.expiresAt
		}
	}
	if !removed && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
