// Package cache holds the URL to outcome map that survives across runs.
package cache

import (
	"sort"
	"time"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
)

// Cache maps input URLs to their most recent archiving result. Entries are only ever added or
// overwritten. It is owned by a single goroutine and is not safe for concurrent use.
type Cache struct {
	entries map[string]archiver.Result
	dirty   map[string]struct{}
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]archiver.Result),
		dirty:   make(map[string]struct{}),
	}
}

// Lookup returns the stored result for url.
func (c *Cache) Lookup(url string) (archiver.Result, bool) {
	res, ok := c.entries[url]
	return res, ok
}

// Update inserts or overwrites the result for url and marks it dirty.
func (c *Cache) Update(url string, res archiver.Result) {
	c.entries[url] = res
	c.dirty[url] = struct{}{}
}

// Len returns the number of URLs in the cache.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Keys returns every URL in ascending order.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dirty returns, in ascending order, the URLs updated since the last MarkClean.
func (c *Cache) Dirty() []string {
	keys := make([]string, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarkClean forgets the dirty set after a successful checkpoint.
func (c *Cache) MarkClean() {
	c.dirty = make(map[string]struct{})
}

// IsReusable reports whether a cached result is recent enough to skip the service entirely.
// Tombstones are never reusable.
func IsReusable(res archiver.Result, now time.Time, window time.Duration) bool {
	return res.Succeeded() && now.Sub(res.LastArchived) < window
}
