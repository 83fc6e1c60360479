package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Greater(t, cfg.RequestsPerSecond, 0.0)
	assert.Greater(t, cfg.BurstSize, 0)
}

func TestNormalizeConfig(t *testing.T) {
	cfg := normalizeConfig(&Config{RequestsPerSecond: 4})
	assert.Equal(t, 4, cfg.BurstSize)
	assert.Equal(t, defaultEntryTTL, cfg.EntryTTL)

	cfg = normalizeConfig(&Config{RequestsPerSecond: 0.5})
	assert.Equal(t, 1, cfg.BurstSize)
}

func TestAllowIsPerKey(t *testing.T) {
	limiter := NewKeyedLimiter(&Config{RequestsPerSecond: 0.001, BurstSize: 2})
	t.Cleanup(func() { _ = limiter.Close() })

	assert.True(t, limiter.Allow("guides"))
	assert.True(t, limiter.Allow("guides"))
	assert.False(t, limiter.Allow("guides"))
	assert.True(t, limiter.Allow("categories"))
	assert.Equal(t, 2, limiter.Len())
}

func TestWaitHonoursContext(t *testing.T) {
	limiter := NewKeyedLimiter(&Config{RequestsPerSecond: 0.001, BurstSize: 1})
	t.Cleanup(func() { _ = limiter.Close() })

	require.NoError(t, limiter.Wait(context.Background(), "guides"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, limiter.Wait(ctx, "guides"))
}

func TestWaitReleasesWithinRate(t *testing.T) {
	limiter := NewKeyedLimiter(&Config{RequestsPerSecond: 100, BurstSize: 1})
	t.Cleanup(func() { _ = limiter.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for range 3 {
		require.NoError(t, limiter.Wait(ctx, "guides"))
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	limiter := NewKeyedLimiter(&Config{RequestsPerSecond: 1, MaxEntries: 2})
	t.Cleanup(func() { _ = limiter.Close() })

	limiter.Allow("guides")
	limiter.Allow("categories")
	limiter.Allow("guides")
	limiter.Allow("search")

	assert.Equal(t, 2, limiter.Len())
	assert.Contains(t, limiter.buckets, "guides")
	assert.Contains(t, limiter.buckets, "search")
	assert.NotContains(t, limiter.buckets, "categories")
}

func TestCleanupDropsIdleKeys(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := start

	limiter := NewKeyedLimiter(&Config{RequestsPerSecond: 1, EntryTTL: time.Minute})
	t.Cleanup(func() { _ = limiter.Close() })
	limiter.mu.Lock()
	limiter.now = func() time.Time { return clock }
	limiter.mu.Unlock()

	limiter.Allow("categories")
	clock = start.Add(45 * time.Second)
	limiter.Allow("guides")

	limiter.cleanupExpired(start.Add(90 * time.Second))
	assert.Equal(t, 1, limiter.Len())
	assert.Contains(t, limiter.buckets, "guides")

	limiter.cleanupExpired(start.Add(10 * time.Minute))
	assert.Equal(t, 0, limiter.Len())
}

func TestEmptyKeySharesDefaultBucket(t *testing.T) {
	limiter := NewKeyedLimiter(&Config{RequestsPerSecond: 0.001, BurstSize: 1})
	t.Cleanup(func() { _ = limiter.Close() })

	assert.True(t, limiter.Allow(""))
	assert.False(t, limiter.Allow("default"))
}
