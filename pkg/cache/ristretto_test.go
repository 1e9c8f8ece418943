package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()

	c, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	rc, ok := c.(*RistrettoCache)
	require.True(t, ok)
	return rc
}

func TestRistrettoCache_SetAndGet(t *testing.T) {
	c := newTestCache(t)

	ok := c.Set("token:abc", 0.01, time.Hour)
	require.True(t, ok)
	c.Wait()

	got, found := c.Get("token:abc")
	require.True(t, found)
	assert.Equal(t, 0.01, got)
}

func TestRistrettoCache_MissingKey(t *testing.T) {
	c := newTestCache(t)

	_, found := c.Get("nonexistent")
	assert.False(t, found)
}

func TestRistrettoCache_Delete(t *testing.T) {
	c := newTestCache(t)

	c.Set("token:del", "value", time.Hour)
	c.Wait()

	_, found := c.Get("token:del")
	require.True(t, found)

	c.Delete("token:del")

	_, found = c.Get("token:del")
	assert.False(t, found)
}

func TestRistrettoCache_TTLExpiration(t *testing.T) {
	c := newTestCache(t)

	c.Set("token:ttl", "value", 200*time.Millisecond)
	c.Wait()

	_, found := c.Get("token:ttl")
	require.True(t, found)

	time.Sleep(300 * time.Millisecond)

	_, found = c.Get("token:ttl")
	assert.False(t, found)
}

func TestRistrettoCache_Clear(t *testing.T) {
	c := newTestCache(t)

	c.Set("clear-key1", "value1", time.Hour)
	c.Set("clear-key2", "value2", time.Hour)
	c.Wait()

	_, found1 := c.Get("clear-key1")
	_, found2 := c.Get("clear-key2")
	if !found1 || !found2 {
		// Ristretto admission is probabilistic.
		t.Skip("keys not admitted")
	}

	c.Clear()

	_, found1 = c.Get("clear-key1")
	_, found2 = c.Get("clear-key2")
	assert.False(t, found1)
	assert.False(t, found2)
}
