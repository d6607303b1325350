package reader

import (
	"container/list"
	"sync"
)

// chunkCache is a byte-bounded LRU of decoded chunks keyed by file
// address. Decoded chunks all have the same size for one dataset, but
// the cache tracks bytes so one budget works across datasets too.
type chunkCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	order    *list.List
	entries  map[uint64]*list.Element
}

type cacheEntry struct {
	addr uint64
	data []byte
}

func newChunkCache(capacity int64) *chunkCache {
	return &chunkCache{
		capacity: capacity,
		order:    list.New(),
		entries:  map[uint64]*list.Element{},
	}
}

func (c *chunkCache) get(addr uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[addr]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (c *chunkCache) put(addr uint64, data []byte) {
	if int64(len(data)) > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[addr]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		c.size += int64(len(data)) - int64(len(entry.data))
		entry.data = data
	} else {
		c.entries[addr] = c.order.PushFront(&cacheEntry{addr: addr, data: data})
		c.size += int64(len(data))
	}

	for c.size > c.capacity {
		el := c.order.Back()
		if el == nil {
			break
		}
		entry := el.Value.(*cacheEntry)
		c.order.Remove(el)
		delete(c.entries, entry.addr)
		c.size -= int64(len(entry.data))
	}
}

func (c *chunkCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
