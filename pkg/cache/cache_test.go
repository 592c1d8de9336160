package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string]("test", 10, time.Minute, nil)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v")
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[int]("test", 10, 20*time.Millisecond, nil)

	c.Set("k", 42)
	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestCache_SizeBound(t *testing.T) {
	c := New[int]("test", 2, time.Minute, nil)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.LessOrEqual(t, c.Len(), 2)
	_, ok := c.Get("c")
	assert.True(t, ok, "most recent entry survives eviction")
}

func TestCache_Invalidate(t *testing.T) {
	c := New[int]("test", 10, time.Minute, nil)

	c.Set("k", 1)
	c.Invalidate("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_Purge(t *testing.T) {
	c := New[int]("test", 10, time.Minute, nil)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}
