package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-cache/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateStarting
	ManagerStateRunning
	ManagerStateStopping
)

var customCacheCreators = make(map[string]types.CacheManagerCreator)

func RegisterCacheManager(cacheManagerName string, creator types.CacheManagerCreator) {
	customCacheCreators[cacheManagerName] = creator
}

// NewCacheManager builds the cache manager selected by config. With metrics
// enabled the manager is wrapped in the instrumentation decorator.
func NewCacheManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CacheManager, error) {
	cacheConfig := config.GetConfig().Cache
	if cacheConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	cacheManagerName := cacheConfig.Type
	if cacheManagerName == "" {
		cacheManagerName = "memory"
	}

	var impl types.CacheManager
	var err error

	switch cacheManagerName {
	case "memory":
		impl, err = NewManager(ctx, config, logger, metrics)
	default:
		if creator, exists := customCacheCreators[cacheManagerName]; exists {
			impl, err = creator(cacheConfig)
		} else {
			return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", cacheManagerName)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics != nil {
		return newInstrumentedCacheManager(logger, metrics, impl), nil
	}

	return impl, nil
}

// Manager combines the store, its analytics and the optional status reporter
// under one handle with the standard lifecycle.
type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	store           *Store
	analytics       *Analytics
	watcher         *Watcher
	reporter        *Reporter
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	cfg := config.GetConfig()

	store, err := NewStore(cfg.Cache, logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to create cache store")
	}

	analytics := NewAnalytics(store, logger)

	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:             managerCtx,
		cancel:          cancel,
		logger:          logger,
		store:           store,
		analytics:       analytics,
		shutdownTimeout: 10 * time.Second,
	}
	m.state.Store(ManagerStateStopped)

	if cfg.Watcher != nil && cfg.Watcher.Enabled {
		if cfg.Reporter == nil || !cfg.Reporter.Enabled {
			cancel()
			return nil, types.ErrWatcherRequiresReporter
		}

		watcher, err := NewWatcher(cfg.Watcher, logger, store)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to create file watcher")
		}
		m.watcher = watcher
	}

	if cfg.Reporter != nil && cfg.Reporter.Enabled {
		reporter, err := NewReporter(cfg.Reporter, logger, store, analytics, m.watcher, metrics)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to create status reporter")
		}
		m.reporter = reporter
	}

	return m, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(ManagerStateStopped, ManagerStateStarting) {
		return types.ErrCacheAlreadyRunning
	}

	defer func() {
		if m.getState() == ManagerStateStarting {
			m.setState(ManagerStateRunning)
		}
	}()

	if m.reporter != nil {
		if err := m.reporter.Start(); err != nil {
			m.setState(ManagerStateStopped)
			return types.WrapError(err, "failed to start status reporter")
		}
	}

	m.logger.Info("Cache manager started", zap.String("instance_id", m.store.instanceID))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(ManagerStateRunning, ManagerStateStopping) {
		return types.ErrCacheNotRunning
	}

	defer func() {
		m.setState(ManagerStateStopped)
		m.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	if m.reporter != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return m.reporter.Stop()
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			m.logger.Warn("Cache manager stop timeout, some components may not have stopped gracefully")
		default:
			m.logger.Error("Error during cache manager shutdown", zap.Error(err))
		}
	}

	m.analytics.LogPeriodicStatus(true)
	m.logger.Info("Cache manager stopped", zap.String("instance_id", m.store.instanceID))

	if syncer, ok := m.logger.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == ManagerStateRunning
}

func (m *Manager) getState() ManagerState {
	return m.state.Load().(ManagerState)
}

func (m *Manager) setState(newState ManagerState) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to ManagerState) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) Get(key string) (interface{}, bool) {
	return m.store.Get(key)
}

func (m *Manager) GetWithTTL(key string, ttlOverride time.Duration) (interface{}, bool) {
	return m.store.GetWithTTL(key, ttlOverride)
}

func (m *Manager) Put(key string, value interface{}) bool {
	result := m.store.Put(key, value)
	m.analytics.LogPeriodicStatus(false)
	return result
}

func (m *Manager) PutWithStrategy(key string, value interface{}, opts ...types.PutOption) bool {
	return m.store.PutWithStrategy(key, value, opts...)
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. compute runs outside any lock, exactly once per miss; its error
// propagates unchanged and nothing is cached. Concurrent misses on the same
// key may each compute independently.
func (m *Manager) GetOrCompute(key string, compute func() (interface{}, error), ttl time.Duration) (interface{}, error) {
	if compute == nil {
		return nil, types.ErrCacheComputeIsNil
	}

	if value, exists := m.store.GetWithTTL(key, ttl); exists {
		return value, nil
	}

	start := time.Now()
	value, err := compute()
	if err != nil {
		m.logger.Error("Failed to compute cache value", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	m.Put(key, value)
	m.logger.Debug("Cache miss computed",
		zap.String("key", key),
		zap.Duration("compute_time", time.Since(start)))

	return value, nil
}

func (m *Manager) Invalidate(key string) bool {
	return m.store.Invalidate(key)
}

func (m *Manager) InvalidateByTag(tag string) int {
	return m.store.InvalidateByTag(tag)
}

func (m *Manager) InvalidatePattern(pattern string) int {
	return m.store.InvalidatePattern(pattern)
}

func (m *Manager) Clear() int {
	result := m.store.Clear()
	m.analytics.LogStatus("cache_cleared")
	return result
}

func (m *Manager) Keys() []string {
	return m.store.Keys()
}

func (m *Manager) Stats() types.CacheStats {
	return m.store.Stats()
}

func (m *Manager) EntryInfo(key string) (*types.EntryInfo, bool) {
	return m.store.EntryInfo(key)
}

func (m *Manager) RegisterInvalidationCallback(key string, callback types.InvalidationCallback) {
	m.store.RegisterInvalidationCallback(key, callback)
}

func (m *Manager) SetTTLForKey(key string, ttl time.Duration) bool {
	return m.store.SetTTLForKey(key, ttl)
}

func (m *Manager) ExtendTTL(key string, additional time.Duration) bool {
	return m.store.ExtendTTL(key, additional)
}

func (m *Manager) HealthReport() *types.CacheHealthReport {
	return m.analytics.HealthReport()
}

func (m *Manager) VisualSummary() *types.CacheVisualSummary {
	return m.analytics.VisualSummary()
}

func (m *Manager) ExportStats() ([]byte, error) {
	return m.analytics.ExportStats()
}

func (m *Manager) LogStatus(operation string) {
	m.analytics.LogStatus(operation)
}

func (m *Manager) LogPeriodicStatus(force bool) {
	m.analytics.LogPeriodicStatus(force)
}

func (m *Manager) Checker(name string) types.HealthChecker {
	return m.analytics.Checker(name)
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(logger types.Logger, metrics types.MetricsManager, impl types.CacheManager) types.CacheManager {
	return &instrumentedCacheManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (icm *instrumentedCacheManager) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := icm.impl.Get(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get", result, duration)
	return value, exists
}

func (icm *instrumentedCacheManager) GetWithTTL(key string, ttlOverride time.Duration) (interface{}, bool) {
	return icm.impl.GetWithTTL(key, ttlOverride)
}

func (icm *instrumentedCacheManager) Put(key string, value interface{}) bool {
	start := time.Now()
	stored := icm.impl.Put(key, value)
	icm.recordMetric("put", "success", time.Since(start))
	return stored
}

func (icm *instrumentedCacheManager) PutWithStrategy(key string, value interface{}, opts ...types.PutOption) bool {
	start := time.Now()
	stored := icm.impl.PutWithStrategy(key, value, opts...)
	icm.recordMetric("put_with_strategy", "success", time.Since(start))
	return stored
}

func (icm *instrumentedCacheManager) GetOrCompute(key string, compute func() (interface{}, error), ttl time.Duration) (interface{}, error) {
	start := time.Now()
	value, err := icm.impl.GetOrCompute(key, compute, ttl)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("get_or_compute", result, duration)
	return value, err
}

func (icm *instrumentedCacheManager) Invalidate(key string) bool {
	start := time.Now()
	removed := icm.impl.Invalidate(key)
	duration := time.Since(start)

	result := "miss"
	if removed {
		result = "success"
	}

	icm.recordMetric("invalidate", result, duration)
	return removed
}

func (icm *instrumentedCacheManager) InvalidateByTag(tag string) int {
	start := time.Now()
	count := icm.impl.InvalidateByTag(tag)
	icm.recordMetric("invalidate_by_tag", "success", time.Since(start))
	return count
}

func (icm *instrumentedCacheManager) InvalidatePattern(pattern string) int {
	start := time.Now()
	count := icm.impl.InvalidatePattern(pattern)
	icm.recordMetric("invalidate_pattern", "success", time.Since(start))
	return count
}

func (icm *instrumentedCacheManager) Clear() int {
	start := time.Now()
	count := icm.impl.Clear()
	icm.recordMetric("clear", "success", time.Since(start))
	return count
}

func (icm *instrumentedCacheManager) Keys() []string {
	return icm.impl.Keys()
}

func (icm *instrumentedCacheManager) Stats() types.CacheStats {
	return icm.impl.Stats()
}

func (icm *instrumentedCacheManager) EntryInfo(key string) (*types.EntryInfo, bool) {
	return icm.impl.EntryInfo(key)
}

func (icm *instrumentedCacheManager) RegisterInvalidationCallback(key string, callback types.InvalidationCallback) {
	icm.impl.RegisterInvalidationCallback(key, callback)
}

func (icm *instrumentedCacheManager) SetTTLForKey(key string, ttl time.Duration) bool {
	return icm.impl.SetTTLForKey(key, ttl)
}

func (icm *instrumentedCacheManager) ExtendTTL(key string, additional time.Duration) bool {
	return icm.impl.ExtendTTL(key, additional)
}

func (icm *instrumentedCacheManager) HealthReport() *types.CacheHealthReport {
	return icm.impl.HealthReport()
}

func (icm *instrumentedCacheManager) VisualSummary() *types.CacheVisualSummary {
	return icm.impl.VisualSummary()
}

func (icm *instrumentedCacheManager) ExportStats() ([]byte, error) {
	return icm.impl.ExportStats()
}

func (icm *instrumentedCacheManager) LogStatus(operation string) {
	icm.impl.LogStatus(operation)
}

func (icm *instrumentedCacheManager) LogPeriodicStatus(force bool) {
	icm.impl.LogPeriodicStatus(force)
}

func (icm *instrumentedCacheManager) Checker(name string) types.HealthChecker {
	return icm.impl.Checker(name)
}

func (icm *instrumentedCacheManager) Start() error {
	start := time.Now()
	err := icm.impl.Start()
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("start", result, duration)

	return err
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	opCounter := icm.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := icm.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
