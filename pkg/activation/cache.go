package activation

import (
	"sync"

	"github.com/theapemachine/recall/pkg/memory"
)

/*
PrefetchCache is a bounded, insertion-ordered cache of primed nodes. When a
new key arrives at capacity the oldest fifth of the entries is evicted, at
least one. Reads do not refresh an entry's position.
*/
type PrefetchCache struct {
	mu       sync.Mutex
	capacity int
	keys     []string
	items    map[string]*memory.Node
}

func NewPrefetchCache(capacity int) *PrefetchCache {
	return &PrefetchCache{
		capacity: max(0, capacity),
		items:    make(map[string]*memory.Node),
	}
}

func (cache *PrefetchCache) Get(key string) (*memory.Node, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	node, ok := cache.items[key]

	return node, ok
}

// Set stores node under key and returns how many entries were evicted.
func (cache *PrefetchCache) Set(key string, node *memory.Node) int {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.capacity == 0 {
		return 0
	}

	if _, ok := cache.items[key]; ok {
		cache.items[key] = node
		return 0
	}

	evicted := 0

	if len(cache.keys) >= cache.capacity {
		evicted = cache.evict()
	}

	cache.keys = append(cache.keys, key)
	cache.items[key] = node

	return evicted
}

// EvictCount is how many entries an overflow removes.
func (cache *PrefetchCache) EvictCount() int {
	return max(1, cache.capacity/5)
}

func (cache *PrefetchCache) evict() int {
	n := min(cache.EvictCount(), len(cache.keys))

	for _, key := range cache.keys[:n] {
		delete(cache.items, key)
	}

	cache.keys = append([]string(nil), cache.keys[n:]...)

	return n
}

func (cache *PrefetchCache) Len() int {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	return len(cache.keys)
}

func (cache *PrefetchCache) Capacity() int {
	return cache.capacity
}

// Keys returns the cached keys, oldest first.
func (cache *PrefetchCache) Keys() []string {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	return append([]string(nil), cache.keys...)
}

func (cache *PrefetchCache) Clear() {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.keys = nil
	cache.items = make(map[string]*memory.Node)
}
