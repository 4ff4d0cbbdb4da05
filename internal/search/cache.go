// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/deep-research/internal/store"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Hour
)

type cacheEntry struct {
	output   Output
	storedAt time.Time
}

// Cache holds recent live search outputs keyed by normalized query.
// Entries older than the TTL are treated as misses and evicted.
type Cache struct {
	lru *lru.Cache[string, cacheEntry]
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a cache holding up to size queries for ttl. Non-positive
// values fall back to 256 entries and one hour.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		// lru.New only fails on a non-positive size, guarded above.
		panic(err)
	}
	return &Cache{lru: c, ttl: ttl, now: time.Now}
}

// Get returns the cached output for query.
func (c *Cache) Get(query string) (Output, bool) {
	if c == nil {
		return Output{}, false
	}
	key := store.NormalizeQuery(query)
	entry, ok := c.lru.Get(key)
	if !ok {
		return Output{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.lru.Remove(key)
		return Output{}, false
	}
	return entry.output.clone(), true
}

// Put stores out for query.
func (c *Cache) Put(query string, out Output) {
	if c == nil {
		return
	}
	c.lru.Add(store.NormalizeQuery(query), cacheEntry{output: out.clone(), storedAt: c.now()})
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
