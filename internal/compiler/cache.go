package compiler

import (
	"sync"
	"sync/atomic"

	"github.com/conneroisu/shadowstream/internal/tpl"
)

// Cache holds compiled programs keyed by template shape identity.
//
// A zero maxEntries cache never evicts, so every shape compiles exactly
// once for the life of the process. A positive bound evicts the least
// recently used shape; servers that mint shapes from reloaded template
// files set one.
type Cache struct {
	entries    map[*tpl.Statics]*cacheEntry
	mutex      sync.Mutex
	maxEntries int

	// LRU list with sentinel head and tail
	head *cacheEntry
	tail *cacheEntry

	hits      int64
	misses    int64
	stores    int64
	evictions int64
}

type cacheEntry struct {
	key     *tpl.Statics
	program *Program
	prev    *cacheEntry
	next    *cacheEntry
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries   int     `json:"entries" yaml:"entries"`
	Hits      int64   `json:"hits" yaml:"hits"`
	Misses    int64   `json:"misses" yaml:"misses"`
	Stores    int64   `json:"stores" yaml:"stores"`
	Evictions int64   `json:"evictions" yaml:"evictions"`
	HitRate   float64 `json:"hitRate" yaml:"hitRate"`
}

// NewCache creates a cache. maxEntries <= 0 means unbounded.
func NewCache(maxEntries int) *Cache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	c := &Cache{
		entries:    make(map[*tpl.Statics]*cacheEntry),
		maxEntries: maxEntries,
		head:       &cacheEntry{},
		tail:       &cacheEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the program compiled for s.
func (c *Cache) Get(s *tpl.Statics) (*Program, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[s]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	c.moveToFront(entry)
	atomic.AddInt64(&c.hits, 1)
	return entry.program, true
}

// LoadOrStore stores p for s unless a program is already cached, in which
// case the cached program is returned and loaded is true. When two
// goroutines compile the same new shape, the first store wins.
func (c *Cache) LoadOrStore(s *tpl.Statics, p *Program) (actual *Program, loaded bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.entries[s]; ok {
		c.moveToFront(entry)
		return entry.program, true
	}

	c.evictIfNeeded()

	entry := &cacheEntry{key: s, program: p}
	c.entries[s] = entry
	c.addToFront(entry)
	atomic.AddInt64(&c.stores, 1)
	return p, false
}

// Forget drops the program for s.
func (c *Cache) Forget(s *tpl.Statics) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.entries[s]; ok {
		c.removeFromList(entry)
		delete(c.entries, s)
	}
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	stats := CacheStats{
		Entries:   c.Len(),
		Hits:      hits,
		Misses:    misses,
		Stores:    atomic.LoadInt64(&c.stores),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

func (c *Cache) evictIfNeeded() {
	if c.maxEntries == 0 {
		return
	}
	for len(c.entries) >= c.maxEntries && c.tail.prev != c.head {
		lru := c.tail.prev
		c.removeFromList(lru)
		delete(c.entries, lru.key)
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *Cache) addToFront(entry *cacheEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *Cache) removeFromList(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (c *Cache) moveToFront(entry *cacheEntry) {
	c.removeFromList(entry)
	c.addToFront(entry)
}
