// ABOUTME: Tests for the idempotency-key dedupe cache
// ABOUTME: Covers lookup, TTL expiry, size eviction, and concurrent access

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_LookupAndRemember(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	_, ok := c.Lookup("key-1")
	assert.False(t, ok)

	c.Remember("key-1", 42)

	id, ok := c.Lookup("key-1")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = c.Lookup("key-2")
	assert.False(t, ok)
}

func TestCache_RememberOverwrites(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	c.Remember("key-1", 1)
	c.Remember("key-1", 2)

	id, ok := c.Lookup("key-1")
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(20*time.Millisecond, 100)
	defer c.Close()

	c.Remember("key-1", 1)

	_, ok := c.Lookup("key-1")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok = c.Lookup("key-1")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestCache_SizeEviction(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	c.Remember("a", 1)
	c.Remember("b", 2)
	c.Remember("c", 3)
	c.Remember("d", 4) // evicts "a"

	_, ok := c.Lookup("a")
	assert.False(t, ok, "oldest entry should be evicted at capacity")

	for key, want := range map[string]int64{"b": 2, "c": 3, "d": 4} {
		id, ok := c.Lookup(key)
		assert.True(t, ok, "key %s", key)
		assert.Equal(t, want, id)
	}
}

func TestCache_RememberRefreshesOrder(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	c.Remember("a", 1)
	c.Remember("b", 2)
	c.Remember("c", 3)
	c.Remember("a", 1) // moves "a" to the back
	c.Remember("d", 4) // evicts "b" now

	_, ok := c.Lookup("a")
	assert.True(t, ok)
	_, ok = c.Lookup("b")
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			c.Remember(key, int64(i))
			id, ok := c.Lookup(key)
			assert.True(t, ok)
			assert.Equal(t, int64(i), id)
		}(i)
	}
	wg.Wait()
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
