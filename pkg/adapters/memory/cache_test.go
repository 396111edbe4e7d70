package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Contract(t *testing.T) {
	ports.RunCacheContract(t, NewCache())
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Second))

	_, err := cache.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	assert.Equal(t, 0, cache.Len(), "expired entry is dropped on read")
}

func TestMemoryCache_Isolation(t *testing.T) {
	ctx := context.Background()
	cache := NewCache()

	value := []byte("abc")
	require.NoError(t, cache.Set(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'Y'
	again, _ := cache.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}
