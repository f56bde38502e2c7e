package fares

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// Cache memoizes quotes per coordinate pair for a short TTL, since repeated
// requests for the same pickup/drop are common while a passenger retries.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	fare models.FareBreakdown
	ts   time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lng, b.Lat, b.Lng)
}

func (c *Cache) Get(a, b models.Coord) (models.FareBreakdown, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.FareBreakdown{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.FareBreakdown{}, false
	}
	return e.fare, true
}

func (c *Cache) Set(a, b models.Coord, fare models.FareBreakdown) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{fare: fare, ts: time.Now()}
	c.mu.Unlock()
}
