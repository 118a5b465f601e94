package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	fresh := &CacheEntry{CreatedAt: time.Now(), Strategy: StrategyTimeBased}
	assert.False(t, fresh.IsExpired(time.Minute))

	old := &CacheEntry{CreatedAt: time.Now().Add(-2 * time.Minute), Strategy: StrategyTimeBased}
	assert.True(t, old.IsExpired(time.Minute))

	// A per-entry TTL wins over the fallback.
	custom := &CacheEntry{
		CreatedAt: time.Now().Add(-2 * time.Minute),
		Strategy:  StrategyTimeBased,
		CustomTTL: time.Hour,
	}
	assert.False(t, custom.IsExpired(time.Minute))

	manual := &CacheEntry{CreatedAt: time.Now().Add(-24 * time.Hour), Strategy: StrategyManual}
	assert.False(t, manual.IsExpired(time.Minute))
}

func TestCacheEntry_MarkAccess(t *testing.T) {
	entry := &CacheEntry{}
	before := time.Now()

	entry.MarkAccess()
	entry.MarkAccess()

	assert.Equal(t, int64(2), entry.AccessCount)
	assert.False(t, entry.LastAccess.Before(before))
}

func TestCacheEntry_AddTagAndDependencyDeduplicate(t *testing.T) {
	entry := &CacheEntry{}

	entry.AddTag("settings")
	entry.AddTag("settings")
	entry.AddTag("hot")
	assert.Equal(t, []string{"settings", "hot"}, entry.Tags)

	entry.AddDependency("config")
	entry.AddDependency("config")
	assert.Equal(t, []string{"config"}, entry.Dependencies)
}

func TestCacheStats_UpdateHitRate(t *testing.T) {
	stats := &CacheStats{}
	stats.UpdateHitRate()
	assert.Equal(t, float64(0), stats.HitRate)

	stats.Hits = 3
	stats.Misses = 1
	stats.UpdateHitRate()
	assert.Equal(t, float64(75), stats.HitRate)
}

func TestErrorHelpers(t *testing.T) {
	wrapped := Errorf(ErrCacheTypeUnknown, "type: %s", "redis")
	assert.True(t, IsError(wrapped, ErrCacheTypeUnknown))
	assert.Contains(t, wrapped.Error(), "type: redis")

	rewrapped := WrapError(wrapped, "failed to build manager")
	assert.True(t, IsError(rewrapped, ErrCacheTypeUnknown))
	assert.Contains(t, rewrapped.Error(), "failed to build manager")

	assert.NoError(t, WrapError(nil, "ignored"))
	assert.False(t, IsError(ErrCacheNotRunning, ErrCacheAlreadyRunning))
}