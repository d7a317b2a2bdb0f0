package dispatch

import (
	"container/list"
	"sync"
)

// DefaultCacheSize bounds the per-trigger sent cache.
const DefaultCacheSize = 100

// SentCache remembers order ids already confirmed sent, oldest evicted first.
// It only short-circuits work; the order document stays authoritative.
type SentCache struct {
	mu    sync.Mutex
	limit int
	order *list.List
	index map[string]*list.Element
}

// NewSentCache returns a cache holding at most limit ids.
func NewSentCache(limit int) *SentCache {
	if limit <= 0 {
		limit = DefaultCacheSize
	}
	return &SentCache{limit: limit, order: list.New(), index: make(map[string]*list.Element)}
}

// Contains reports whether id is cached.
func (c *SentCache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Add inserts id. Re-adding an existing id keeps its original position.
func (c *SentCache) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; ok {
		return
	}
	c.index[id] = c.order.PushBack(id)
	for c.order.Len() > c.limit {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(string))
	}
}

// Len returns the number of cached ids.
func (c *SentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
