package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/types"
)

type staticConfig struct {
	cfg *types.Config
}

func (s *staticConfig) Load() error              { return nil }
func (s *staticConfig) GetConfig() *types.Config { return s.cfg }

func memoryConfig() *staticConfig {
	return &staticConfig{cfg: &types.Config{
		Cache: &types.CacheConfig{
			Type:            "memory",
			DefaultTTL:      "1h",
			MaxEntries:      100,
			CleanupInterval: "1h",
		},
	}}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := NewManager(context.Background(), memoryConfig(), logger.NewNopLogger(), nil)
	require.NoError(t, err)
	return manager
}

func TestNewCacheManager_NilCacheConfig(t *testing.T) {
	cfg := &staticConfig{cfg: &types.Config{}}

	_, err := NewCacheManager(context.Background(), cfg, logger.NewNopLogger(), nil)
	assert.ErrorIs(t, err, types.ErrConfigIsNil)
}

func TestNewCacheManager_UnknownType(t *testing.T) {
	cfg := &staticConfig{cfg: &types.Config{
		Cache: &types.CacheConfig{Type: "memcached"},
	}}

	_, err := NewCacheManager(context.Background(), cfg, logger.NewNopLogger(), nil)
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrCacheTypeUnknown))
}

func TestNewCacheManager_CustomCreator(t *testing.T) {
	stub := newTestManager(t)

	var received interface{}
	RegisterCacheManager("stub", func(config interface{}) (types.CacheManager, error) {
		received = config
		return stub, nil
	})

	cfg := &staticConfig{cfg: &types.Config{
		Cache: &types.CacheConfig{Type: "stub"},
	}}

	impl, err := NewCacheManager(context.Background(), cfg, logger.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.Same(t, stub, impl.(*Manager))
	assert.Equal(t, cfg.cfg.Cache, received)
}

func TestNewCacheManager_WrapsWithMetrics(t *testing.T) {
	plain, err := NewCacheManager(context.Background(), memoryConfig(), logger.NewNopLogger(), nil)
	require.NoError(t, err)
	_, instrumented := plain.(*instrumentedCacheManager)
	assert.False(t, instrumented)

	metricsManager := newRunningMetrics(t)
	defer func() { _ = metricsManager.Stop() }()

	wrapped, err := NewCacheManager(context.Background(), memoryConfig(), logger.NewNopLogger(), metricsManager)
	require.NoError(t, err)
	_, instrumented = wrapped.(*instrumentedCacheManager)
	assert.True(t, instrumented)
}

func TestManager_LifecycleStateMachine(t *testing.T) {
	manager := newTestManager(t)

	assert.False(t, manager.IsRunning())
	require.NoError(t, manager.Start())
	assert.True(t, manager.IsRunning())

	assert.ErrorIs(t, manager.Start(), types.ErrCacheAlreadyRunning)

	require.NoError(t, manager.Stop())
	assert.False(t, manager.IsRunning())

	assert.ErrorIs(t, manager.Stop(), types.ErrCacheNotRunning)

	// A stopped manager can be started again.
	require.NoError(t, manager.Start())
	require.NoError(t, manager.Stop())
}

func TestManager_WatcherRequiresReporter(t *testing.T) {
	cfg := &staticConfig{cfg: &types.Config{
		Cache:   &types.CacheConfig{Type: "memory"},
		Watcher: &types.WatcherConfig{Enabled: true, Interval: "1s"},
	}}

	_, err := NewManager(context.Background(), cfg, logger.NewNopLogger(), nil)
	assert.ErrorIs(t, err, types.ErrWatcherRequiresReporter)
}

func TestManager_StartWithReporter(t *testing.T) {
	cfg := &staticConfig{cfg: &types.Config{
		Cache:    &types.CacheConfig{Type: "memory", DefaultTTL: "1h"},
		Reporter: &types.ReporterConfig{Enabled: true, Schedule: "@every 1h"},
	}}

	manager, err := NewManager(context.Background(), cfg, logger.NewNopLogger(), nil)
	require.NoError(t, err)
	require.NotNil(t, manager.reporter)

	require.NoError(t, manager.Start())
	assert.True(t, manager.reporter.IsRunning())

	require.NoError(t, manager.Stop())
	assert.False(t, manager.reporter.IsRunning())
}

func TestManager_GetOrCompute(t *testing.T) {
	manager := newTestManager(t)

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return fmt.Sprintf("result-%d", calls), nil
	}

	value, err := manager.GetOrCompute("k", compute, 0)
	require.NoError(t, err)
	assert.Equal(t, "result-1", value)

	// Second call is served from cache.
	value, err = manager.GetOrCompute("k", compute, 0)
	require.NoError(t, err)
	assert.Equal(t, "result-1", value)
	assert.Equal(t, 1, calls)

	_, err = manager.GetOrCompute("k2", nil, 0)
	assert.ErrorIs(t, err, types.ErrCacheComputeIsNil)
}

func TestManager_GetOrComputeErrorNotCached(t *testing.T) {
	manager := newTestManager(t)

	boom := errors.New("backend down")
	calls := 0
	failing := func() (interface{}, error) {
		calls++
		return nil, boom
	}

	_, err := manager.GetOrCompute("k", failing, 0)
	assert.ErrorIs(t, err, boom)

	_, ok := manager.Get("k")
	assert.False(t, ok, "a failed computation must not be cached")

	_, err = manager.GetOrCompute("k", failing, 0)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestManager_GetOrComputeTTL(t *testing.T) {
	manager := newTestManager(t)

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	_, err := manager.GetOrCompute("k", compute, 30*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(70 * time.Millisecond)

	// The caller's TTL judges the cached entry stale and recomputes even
	// though the store default would keep it.
	value, err := manager.GetOrCompute("k", compute, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, value)

	// A generous TTL is satisfied by the cached value.
	value, err = manager.GetOrCompute("k", compute, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	assert.Equal(t, 2, calls)
}

func TestManager_DelegationSurface(t *testing.T) {
	manager := newTestManager(t)

	manager.PutWithStrategy("a", 1, WithTags("grp"))
	manager.PutWithStrategy("b", 2, WithTags("grp"))
	manager.Put("c", 3)

	assert.Len(t, manager.Keys(), 3)
	assert.Equal(t, 2, manager.InvalidateByTag("grp"))
	assert.True(t, manager.Invalidate("c"))

	manager.Put("d", 4)
	assert.True(t, manager.SetTTLForKey("d", time.Hour))
	assert.True(t, manager.ExtendTTL("d", time.Minute))

	info, ok := manager.EntryInfo("d")
	require.True(t, ok)
	assert.Equal(t, "d", info.Key)

	assert.NotNil(t, manager.HealthReport())
	assert.NotNil(t, manager.VisualSummary())

	exported, err := manager.ExportStats()
	require.NoError(t, err)
	assert.NotEmpty(t, exported)

	check := manager.Checker("cache")(context.Background())
	assert.Equal(t, "cache", check.Name)

	assert.Equal(t, 1, manager.Clear())
}

func newRunningMetrics(t *testing.T) types.MetricsManager {
	t.Helper()

	cfg := &staticConfig{cfg: &types.Config{
		Metrics: &types.MetricsConfig{
			Enabled: true,
			Type:    "prometheus",
			Config:  map[string]interface{}{"enable_go_metrics": false},
		},
	}}

	manager, err := metrics.NewManager(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, manager.Start())
	return manager
}

func TestManager_InstrumentedOperationCounts(t *testing.T) {
	metricsManager := newRunningMetrics(t)
	defer func() { _ = metricsManager.Stop() }()

	manager, err := NewCacheManager(context.Background(), memoryConfig(), logger.NewNopLogger(), metricsManager)
	require.NoError(t, err)

	require.NoError(t, manager.Start())
	defer func() { _ = manager.Stop() }()

	manager.Put("k", "v")

	_, ok := manager.Get("k")
	require.True(t, ok)
	_, ok = manager.Get("absent")
	require.False(t, ok)

	manager.Invalidate("k")
	manager.Invalidate("k")

	operations := func(operation, result string) float64 {
		return metricsManager.Counter("cache_operations_total", map[string]string{
			"operation": operation,
			"result":    result,
		}).Get()
	}

	assert.Equal(t, float64(1), operations("start", "success"))
	assert.Equal(t, float64(1), operations("put", "success"))
	assert.Equal(t, float64(1), operations("get", "hit"))
	assert.Equal(t, float64(1), operations("get", "miss"))
	assert.Equal(t, float64(1), operations("invalidate", "success"))
	assert.Equal(t, float64(1), operations("invalidate", "miss"))
}

func TestManager_ConcurrentSmoke(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.Start())
	defer func() { _ = manager.Stop() }()

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key:%d", (id*7+i)%50)

				switch i % 4 {
				case 0:
					manager.Put(key, i)
				case 1:
					manager.Get(key)
				case 2:
					_, _ = manager.GetOrCompute(key, func() (interface{}, error) {
						return i, nil
					}, 0)
				default:
					manager.Invalidate(key)
				}
			}
		}(worker)
	}
	wg.Wait()

	stats := manager.Stats()
	assert.LessOrEqual(t, stats.TotalEntries, 100)
	assert.Greater(t, stats.Hits+stats.Misses, int64(0))
}
