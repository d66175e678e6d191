// Package pricecache holds the most recent trade tick per ticker.
//
// The cache is last-write-wins: the feed manager is the sole writer, and the
// broadcaster and alert checker read concurrently. A full snapshot seeds every
// newly connected downstream client.
package pricecache

import (
	"sync"

	"github.com/tballes8/northwest-creek/internal/model"
)

// Cache is a concurrency-safe ticker → latest tick map.
type Cache struct {
	mu    sync.RWMutex
	ticks map[string]model.PriceTick
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		ticks: make(map[string]model.PriceTick),
	}
}

// Update overwrites the entry for the tick's ticker.
func (c *Cache) Update(tick model.PriceTick) {
	c.mu.Lock()
	c.ticks[tick.Ticker] = tick
	c.mu.Unlock()
}

// Get returns the latest tick for a ticker.
func (c *Cache) Get(ticker string) (model.PriceTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tick, ok := c.ticks[ticker]
	return tick, ok
}

// Snapshot returns a point-in-time copy of all entries.
func (c *Cache) Snapshot() []model.PriceTick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.PriceTick, 0, len(c.ticks))
	for _, tick := range c.ticks {
		out = append(out, tick)
	}
	return out
}

// Len returns the number of cached tickers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}
