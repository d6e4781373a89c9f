// Package cache holds previously fetched activity keyed by normalized
// identity. Capacity is bounded with LRU eviction so long sessions don't
// grow without limit; entries past the freshness window are kept and
// served as stale fallbacks rather than deleted.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kvasirlabs/gh-activity/internal/models"
)

// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 64

// Cache is an LRU store of activity batches. Safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, *models.ActivityBatch]
	window  time.Duration
	now     func() time.Time
}

// New creates a cache holding at most capacity entries, serving entries
// younger than window as fresh.
func New(capacity int, window time.Duration) (*Cache, error) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, *models.ActivityBatch](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU store: %w", err)
	}
	return &Cache{
		entries: entries,
		window:  window,
		now:     time.Now,
	}, nil
}

// Lookup returns a copy of the entry for identity, if any. A hit
// refreshes the entry's LRU recency.
func (c *Cache) Lookup(identity string) (*models.ActivityBatch, bool) {
	batch, ok := c.entries.Get(identity)
	if !ok {
		return nil, false
	}
	return batch.Clone(), true
}

// Store inserts or overwrites the entry for identity, stamping it with
// the current time. At capacity the least-recently-used entry is evicted.
// The batch is copied on the way in, so the cache owns its entry.
func (c *Cache) Store(identity string, batch *models.ActivityBatch) {
	entry := batch.Clone()
	entry.FetchedAt = c.now()
	c.entries.Add(identity, entry)
}

// IsFresh reports whether a batch is still within the freshness window.
func (c *Cache) IsFresh(batch *models.ActivityBatch) bool {
	if batch == nil {
		return false
	}
	return c.now().Sub(batch.FetchedAt) < c.window
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
