package envcache

import (
	"os"
	"sync"
	"time"
)

// Cache is the two-tier environment cache described in §4.F. Most reads
// are satisfied by the ring buffer without ever taking the map's lock.
type Cache struct {
	ring ring

	mu      sync.RWMutex
	entries map[Key]*Entry

	now         func() time.Time
	statModTime func(path string) (time.Time, bool)

	watcher *watcher
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		entries:     map[Key]*Entry{},
		now:         time.Now,
		statModTime: defaultStatModTime,
	}
}

func defaultStatModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Lookup implements the invalidation order from §4.F: (1) scan the ring
// buffer; (2) if found, validate; (3) otherwise take the map's shared
// lock; (4) if found there, validate and promote into the ring. A found
// but invalid entry is treated the same as not found, in both tiers.
func (c *Cache) Lookup(key Key) (*Entry, bool) {
	if e := c.ring.find(key); e != nil {
		if e.isValid(c.now(), c.statModTime) {
			return e, true
		}
		c.invalidate(key)
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.isValid(c.now(), c.statModTime) {
		c.invalidate(key)
		return nil, false
	}

	c.ring.publish(e)
	return e, true
}

// Put inserts or replaces the entry for key in both tiers.
func (c *Cache) Put(e *Entry) {
	c.mu.Lock()
	c.entries[e.Key] = e
	c.mu.Unlock()
	c.ring.publish(e)
}

// invalidate removes key from both tiers.
func (c *Cache) invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.ring.invalidate(key)
}

// Invalidate is the exported form of invalidate, for callers (the
// fsnotify-driven watcher, or an explicit cache-bust command) that need to
// evict an entry outside of a failed Lookup.
func (c *Cache) Invalidate(key Key) {
	c.invalidate(key)
}

// Cleanup scans the map for expired entries, removing them from both
// tiers. Safe to call concurrently with Lookup/Put.
func (c *Cache) Cleanup() {
	now := c.now()
	c.mu.RLock()
	var expired []Key
	for k, e := range c.entries {
		if !e.isValid(now, c.statModTime) {
			expired = append(expired, k)
		}
	}
	c.mu.RUnlock()

	for _, k := range expired {
		c.invalidate(k)
	}
}

// Len reports the number of live entries in the map tier.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
