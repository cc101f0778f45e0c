package selector

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
)

// CachedSelection is a selection remembered for one normalized query.
type CachedSelection struct {
	Selection  *core.Selection
	Confidence float64
	CreatedAt  time.Time
}

// Cache is a TTL-bounded selection cache. Concurrent writers for the same
// key race benignly: the last write wins.
type Cache struct {
	lru *expirable.LRU[string, CachedSelection]
}

// NewCache creates a cache holding at most size entries for ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, CachedSelection](size, nil, ttl)}
}

// CacheKey derives the cache key from the normalized query hash.
func CacheKey(query string, maxTools int) string {
	return fmt.Sprintf("%s:%d", util.QueryHash(query), maxTools)
}

// Get returns a copy of the cached selection. Entries whose confidence is
// below floor are evicted instead of returned.
func (c *Cache) Get(key string, floor float64) (*core.Selection, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if entry.Confidence < floor {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.Selection.Clone(), true
}

// Put stores a copy of sel.
func (c *Cache) Put(key string, sel *core.Selection) {
	c.lru.Add(key, CachedSelection{
		Selection:  sel.Clone(),
		Confidence: sel.TopConfidence(),
		CreatedAt:  time.Now(),
	})
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry, e.g. after the tool set changed.
func (c *Cache) Purge() { c.lru.Purge() }
