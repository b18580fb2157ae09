package mesh

import (
	"sync"
)

// Key identifies a cached operator.
type Key struct {
	Generation uint64
	Op         string
	Order      int
	Shape      string // property kind and length, empty when unused
	Variant    string
}

type entry struct {
	once sync.Once
	val  interface{}
	err  error
}

// Cache holds compute-once operator entries for one mesh instance.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	hits    int
	misses  int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// Get returns the value for k, running compute at most once per key.
// Concurrent callers of a missing key wait for the first computation.
func (c *Cache) Get(k Key, compute func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	e, ok := c.entries[k]
	if ok {
		c.hits++
	} else {
		c.misses++
		e = &entry{}
		c.entries[k] = e
	}
	c.mu.Unlock()
	e.once.Do(func() {
		e.val, e.err = compute()
	})
	return e.val, e.err
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
