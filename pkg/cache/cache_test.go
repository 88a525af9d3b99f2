package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheExpiry(t *testing.T) {
	clock := time.Unix(1000, 0)
	c := New[string](Options{TTL: time.Minute})
	defer c.Close()
	c.now = func() time.Time { return clock }

	c.Set("a", "alpha")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)

	clock = clock.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.deleteExpired()
	assert.Equal(t, 0, c.Count())
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	clock := time.Unix(1000, 0)
	c := New[int](Options{MaxItems: 2})
	defer c.Close()
	c.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	c.Set("first", 1)
	c.Set("second", 2)
	c.Set("first", 10)
	assert.Equal(t, 2, c.Count())

	c.Set("third", 3)
	_, ok := c.Get("second")
	assert.False(t, ok)
	v, ok := c.Get("first")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestCacheDelete(t *testing.T) {
	c := New[int](Options{})
	defer c.Close()

	c.Set("k", 1)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
