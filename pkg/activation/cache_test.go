package activation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theapemachine/recall/pkg/memory"
)

func TestPrefetchCacheEviction(t *testing.T) {
	cache := NewPrefetchCache(10)

	for i := 0; i < 10; i++ {
		assert.Equal(t, 0, cache.Set(fmt.Sprintf("k%d", i), memory.NewNode("n", "", nil)))
	}

	assert.Equal(t, 10, cache.Len())

	evicted := cache.Set("k10", memory.NewNode("n", "", nil))
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 9, cache.Len())

	_, ok := cache.Get("k0")
	assert.False(t, ok)
	_, ok = cache.Get("k1")
	assert.False(t, ok)
	_, ok = cache.Get("k2")
	assert.True(t, ok)
	assert.Equal(t, "k10", cache.Keys()[len(cache.Keys())-1])
}

func TestPrefetchCacheNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 3, 5, 7, 100} {
		cache := NewPrefetchCache(capacity)

		for i := 0; i < capacity*4; i++ {
			cache.Set(fmt.Sprintf("k%d", i), nil)
			assert.LessOrEqual(t, cache.Len(), capacity)
		}
	}
}

func TestPrefetchCacheSmallCapacityEvictsOne(t *testing.T) {
	cache := NewPrefetchCache(3)
	cache.Set("a", nil)
	cache.Set("b", nil)
	cache.Set("c", nil)

	assert.Equal(t, 1, cache.Set("d", nil))
	assert.Equal(t, []string{"b", "c", "d"}, cache.Keys())
}

func TestPrefetchCacheUpdateKeepsPosition(t *testing.T) {
	cache := NewPrefetchCache(2)
	cache.Set("a", memory.NewNode("1", "", nil))
	cache.Set("b", nil)

	assert.Equal(t, 0, cache.Set("a", memory.NewNode("2", "", nil)))
	assert.Equal(t, []string{"a", "b"}, cache.Keys())

	node, _ := cache.Get("a")
	assert.Equal(t, "2", node.ID)
}

func TestPrefetchCacheDisabled(t *testing.T) {
	cache := NewPrefetchCache(0)
	cache.Set("a", nil)
	assert.Equal(t, 0, cache.Len())
}
