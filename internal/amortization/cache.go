package amortization

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 4096

// Stats reports cache effectiveness. Not required for correctness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	Capacity  int
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache memoizes Compute with least-recently-used eviction.
// Safe for concurrent use by independent scenario-path workers.
// Entries are immutable values, so eviction only costs recomputation.
type Cache struct {
	entries   *lru.Cache[Key, Factor]
	capacity  int
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewCache creates a cache holding at most capacity factors.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{capacity: capacity}
	// lru.NewWithEvict only fails on non-positive size.
	entries, err := lru.NewWithEvict[Key, Factor](capacity, func(Key, Factor) {
		c.evictions.Add(1)
	})
	if err != nil {
		panic(err)
	}
	c.entries = entries
	return c
}

// Get returns the factor for k, computing and inserting it on a miss.
func (c *Cache) Get(k Key) Factor {
	if f, ok := c.entries.Get(k); ok {
		c.hits.Add(1)
		return f
	}
	c.misses.Add(1)
	f := Compute(k)
	c.entries.Add(k, f)
	return f
}

// Len returns the number of cached factors.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.entries.Len(),
		Capacity:  c.capacity,
	}
}
