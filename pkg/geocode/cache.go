package geocode

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	match    *Match
	cachedAt time.Time
}

// Cache wraps a Geocoder with an in-memory TTL cache keyed by the literal
// lookup string. Misses (nil matches) are cached too; errors are not.
// Concurrent lookups of the same string share one upstream call.
type Cache struct {
	next  Geocoder
	ttl   time.Duration
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry

	nowFunc func() time.Time
}

// NewCache wraps next. A non-positive ttl disables expiry.
func NewCache(next Geocoder, ttl time.Duration) *Cache {
	return &Cache{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		nowFunc: time.Now,
	}
}

// Lookup returns a cached result for query or asks the wrapped geocoder.
func (c *Cache) Lookup(ctx context.Context, query string) (*Match, error) {
	if m, ok := c.get(query); ok {
		zap.L().Debug("geocode cache hit", zap.String("query", query))
		return m, nil
	}

	v, err, _ := c.group.Do(query, func() (any, error) {
		m, err := c.next.Lookup(ctx, query)
		if err != nil {
			return nil, err
		}
		c.put(query, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Match), nil
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) get(query string) (*Match, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.nowFunc().Sub(e.cachedAt) > c.ttl {
		delete(c.entries, query)
		return nil, false
	}
	return e.match, true
}

func (c *Cache) put(query string, m *Match) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = cacheEntry{match: m, cachedAt: c.nowFunc()}
}
