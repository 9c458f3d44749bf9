package resolvers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := NewTTLCache[string, int](10)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.SetWithTTL("a", 1, time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int](10)
	c.SetWithTTL("a", 1, time.Nanosecond)

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestTTLCacheLRUEviction(t *testing.T) {
	c := NewTTLCache[string, int](2)
	c.SetWithTTL("a", 1, time.Minute)
	c.SetWithTTL("b", 2, time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.SetWithTTL("c", 3, time.Minute)

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTLCacheUpdateExisting(t *testing.T) {
	c := NewTTLCache[string, int](2)
	c.SetWithTTL("a", 1, time.Minute)
	c.SetWithTTL("a", 2, time.Minute)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestTTLCachePurge(t *testing.T) {
	c := NewTTLCache[string, int](10)
	c.SetWithTTL("a", 1, time.Minute)
	c.SetWithTTL("b", 2, time.Minute)

	c.Purge()
	assert.Equal(t, 0, c.Stats().Entries)
	_, ok := c.Get("a")
	assert.False(t, ok)
}
