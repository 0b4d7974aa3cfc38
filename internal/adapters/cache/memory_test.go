package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var got sample
	hit, err := c.GetJSON(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "product:x:20261019", sample{Name: "x", Count: 2}, time.Hour))
	hit, err = c.GetJSON(ctx, "product:x:20261019", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample{Name: "x", Count: 2}, got)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetJSON(ctx, "metrics:tv", []string{"a"}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, "metrics:forever", []string{"b"}, 0))

	now = now.Add(2 * time.Minute)

	var got []string
	hit, _ := c.GetJSON(ctx, "metrics:tv", &got)
	assert.False(t, hit)
	hit, _ = c.GetJSON(ctx, "metrics:forever", &got)
	assert.True(t, hit)

	c.purgeExpired()
	assert.Equal(t, 1, c.Size())
}

func TestMemoryCacheKeysAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	for _, k := range []string{"product:a:1", "product:b:1", "comparison:abc", "metrics:tv"} {
		require.NoError(t, c.SetJSON(ctx, k, 1, time.Hour))
	}

	keys, err := c.Keys(ctx, "product:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"product:a:1", "product:b:1"}, keys)

	n, err := c.Delete(ctx, "product:a:1", "nope")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err = c.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestMemoryCacheUndecodableIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.SetJSON(ctx, "k", "text", time.Hour))

	var got sample
	hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
