// Package cache stores serialized model responses so repeated analyses of the
// same input skip the inference round trip.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cxr-assist-server/internal/domain"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a size-bounded in-process cache. Entries expire after the
// default TTL or the shorter per-call TTL passed to Set.
type MemoryCache struct {
	lru        *expirable.LRU[string, memoryEntry]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryCache creates a cache holding at most maxItems entries.
func NewMemoryCache(maxItems int, defaultTTL time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxItems)
	}
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &MemoryCache{
		lru:        expirable.NewLRU[string, memoryEntry](maxItems, nil, defaultTTL),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Get returns the value stored under key, or ErrCacheMiss.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, domain.ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores value under key. A zero ttl uses the default.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.defaultTTL {
		ttl = c.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.lru.Add(key, memoryEntry{value: stored, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close is a no-op.
func (c *MemoryCache) Close() error {
	return nil
}
