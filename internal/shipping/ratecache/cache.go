// Package ratecache caches live shipping quotes for a short TTL so repeated
// grouping of the same cart does not hammer the carrier rate service.
package ratecache

import (
	"context"
	"sync"
	"time"

	"wishwell/internal/shipping"
)

type cachedQuote struct {
	rates    []shipping.Rate
	storedAt time.Time
}

// Memory is an in-memory quote cache with TTL expiration.
type Memory struct {
	mu       sync.RWMutex
	quotes   map[string]cachedQuote
	cacheTTL time.Duration
}

// NewMemory creates an in-memory quote cache with the specified TTL.
func NewMemory(cacheTTL time.Duration) *Memory {
	return &Memory{
		quotes:   make(map[string]cachedQuote),
		cacheTTL: cacheTTL,
	}
}

// Get retrieves cached rates for the key. Returns false when missing or
// expired past the cache TTL.
func (c *Memory) Get(_ context.Context, key string) ([]shipping.Rate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.quotes[key]; ok {
		if time.Since(cached.storedAt) < c.cacheTTL {
			return cached.rates, true
		}
	}
	return nil, false
}

// Set stores rates for the key.
func (c *Memory) Set(_ context.Context, key string, rates []shipping.Rate) {
	if len(rates) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[key] = cachedQuote{rates: rates, storedAt: time.Now()}
}
