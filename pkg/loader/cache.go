package loader

import (
	"container/list"
	"sync"

	"github.com/raymyers/symjit/pkg/toolchain"
)

// Cache remembers loaded entries by IR fingerprint so a structurally
// identical compilation can skip the toolchain. It holds at most size
// entries and evicts the least recently used.
type Cache struct {
	mu      sync.Mutex
	size    int
	order   *list.List // front is most recent
	items   map[string]*list.Element
	onEvict func(key string, unit *toolchain.Unit)
}

type cacheItem struct {
	key   string
	entry Entry
	unit  *toolchain.Unit
}

// NewCache creates a cache holding up to size entries. onEvict, if set, is
// called for every evicted entry outside the cache lock.
func NewCache(size int, onEvict func(key string, unit *toolchain.Unit)) *Cache {
	return &Cache{
		size:    size,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		onEvict: onEvict,
	}
}

// Get returns the entry cached under key and marks it recently used.
func (c *Cache) Get(key string) (Entry, *toolchain.Unit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, nil, false
	}
	c.order.MoveToFront(el)
	it := el.Value.(*cacheItem)
	return it.entry, it.unit, true
}

// Add caches entry under key. A cache of size zero or less stores nothing.
func (c *Cache) Add(key string, entry Entry, unit *toolchain.Unit) {
	var evicted []*cacheItem
	c.mu.Lock()
	if c.size <= 0 {
		c.mu.Unlock()
		return
	}
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value = &cacheItem{key: key, entry: entry, unit: unit}
	} else {
		c.items[key] = c.order.PushFront(&cacheItem{key: key, entry: entry, unit: unit})
	}
	for c.order.Len() > c.size {
		el := c.order.Back()
		it := c.order.Remove(el).(*cacheItem)
		delete(c.items, it.key)
		evicted = append(evicted, it)
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, it := range evicted {
			c.onEvict(it.key, it.unit)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
