// ABOUTME: Tests for the TTL cache used by the authz checker and registry.
// ABOUTME: Validates expiry, size limits, eviction order, and concurrency safety.

package ttlcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Get_Missing(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Get("never-set")
	assert.False(t, ok)
}

func TestCache_SetGet(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	cache.Set("key", "value")

	got, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestCache_Get_Expired(t *testing.T) {
	cache := New[int](10*time.Millisecond, 100)
	defer cache.Close()

	cache.Set("k", 42)

	_, ok := cache.Get("k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestCache_Set_Overwrite(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	cache.Set("k", 1)
	cache.Set("k", 2)

	got, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New[int](5*time.Minute, 3)
	defer cache.Close()

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)
	cache.Set("d", 4)

	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")

	for _, k := range []string{"b", "c", "d"} {
		_, ok := cache.Get(k)
		assert.True(t, ok, "entry %s should survive", k)
	}
}

func TestCache_OverwriteRefreshesEvictionOrder(t *testing.T) {
	cache := New[int](5*time.Minute, 2)
	defer cache.Close()

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("a", 3) // moves "a" to the back of the eviction order
	cache.Set("c", 4) // should evict "b", not "a"

	_, ok := cache.Get("b")
	assert.False(t, ok)

	got, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestCache_Delete(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	cache.Set("k", 1)
	cache.Delete("k")

	_, ok := cache.Get("k")
	assert.False(t, ok)

	// Deleting a missing key is a no-op.
	cache.Delete("missing")
}

func TestCache_RunCleanup(t *testing.T) {
	cache := New[int](10*time.Millisecond, 100)
	defer cache.Close()

	cache.Set("k", 1)
	time.Sleep(20 * time.Millisecond)

	cache.runCleanup()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New[int](5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j)
				cache.Set(key, j)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestCache_CloseTwice(t *testing.T) {
	cache := New[int](time.Minute, 10)
	cache.Close()
	cache.Close()
}
