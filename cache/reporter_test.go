package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
)

func newTestReporter(t *testing.T, config *types.ReporterConfig, watcher *Watcher, metrics types.MetricsManager) (*Store, *Reporter) {
	t.Helper()

	store := newTestStore(t, slowConfig())
	analytics := NewAnalytics(store, logger.NewNopLogger())

	reporter, err := NewReporter(config, logger.NewNopLogger(), store, analytics, watcher, metrics)
	require.NoError(t, err)
	return store, reporter
}

func TestNewReporter_Validation(t *testing.T) {
	store := newTestStore(t, slowConfig())
	analytics := NewAnalytics(store, logger.NewNopLogger())
	log := logger.NewNopLogger()

	// A nil config falls back to the default schedule.
	reporter, err := NewReporter(nil, log, store, analytics, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "@every 5m", reporter.schedule)

	_, err = NewReporter(&types.ReporterConfig{}, log, store, analytics, nil, nil)
	assert.ErrorIs(t, err, types.ErrReporterScheduleEmpty)

	_, err = NewReporter(&types.ReporterConfig{Schedule: "every day"}, log, store, analytics, nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrReporterScheduleInvalid))

	_, err = NewReporter(&types.ReporterConfig{
		Schedule: "@every 5m",
		Timezone: "Mars/Olympus",
	}, log, store, analytics, nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrReporterTimezoneInvalid))

	_, err = NewReporter(&types.ReporterConfig{
		Schedule: "@every 5m",
		Timezone: "UTC",
	}, log, store, analytics, nil, nil)
	assert.NoError(t, err)
}

func TestReporter_StartStopStateMachine(t *testing.T) {
	_, reporter := newTestReporter(t, &types.ReporterConfig{Schedule: "@every 1h"}, nil, nil)

	assert.False(t, reporter.IsRunning())
	require.NoError(t, reporter.Start())
	assert.True(t, reporter.IsRunning())

	assert.ErrorIs(t, reporter.Start(), types.ErrReporterAlreadyRunning)

	require.NoError(t, reporter.Stop())
	assert.False(t, reporter.IsRunning())

	assert.ErrorIs(t, reporter.Stop(), types.ErrReporterNotRunning)
}

func TestReporter_ReportRefreshesGauges(t *testing.T) {
	metricsManager := newRunningMetrics(t)
	defer func() { _ = metricsManager.Stop() }()

	store, reporter := newTestReporter(t, &types.ReporterConfig{Schedule: "@every 1h"}, nil, metricsManager)

	store.Put("a", "xx")
	store.Put("b", "yyyy")

	reporter.report()

	assert.Equal(t, float64(2), metricsManager.Gauge("cache_entries", nil).Get())

	expected := float64(store.Stats().MemorySizeBytes)
	assert.Equal(t, expected, metricsManager.Gauge("cache_memory_bytes", nil).Get())
}

func TestReporter_PollDrivesWatcher(t *testing.T) {
	store := newTestStore(t, slowConfig())
	analytics := NewAnalytics(store, logger.NewNopLogger())
	path := writeWatchedFile(t, "polled.json")

	watcher, err := NewWatcher(&types.WatcherConfig{Interval: "1s"}, logger.NewNopLogger(), store)
	require.NoError(t, err)
	require.NoError(t, watcher.Watch(path, "cfg"))

	reporter, err := NewReporter(&types.ReporterConfig{Schedule: "@every 1h"}, logger.NewNopLogger(), store, analytics, watcher, nil)
	require.NoError(t, err)

	store.PutWithStrategy("k", "v", WithTags("cfg"))

	touchFuture(t, path)
	reporter.poll()

	_, ok := store.Get("k")
	assert.False(t, ok)
}

func TestReporter_ScheduledTick(t *testing.T) {
	store := newTestStore(t, slowConfig())
	analytics := NewAnalytics(store, logger.NewNopLogger())

	reporter, err := NewReporter(&types.ReporterConfig{Schedule: "@every 1s"}, logger.NewNopLogger(), store, analytics, nil, nil)
	require.NoError(t, err)

	require.NoError(t, reporter.Start())
	defer func() { _ = reporter.Stop() }()

	time.Sleep(2 * time.Second)

	store.mu.Lock()
	ticked := !analytics.lastStatusLog.IsZero()
	store.mu.Unlock()

	assert.True(t, ticked, "the schedule should have produced at least one report")
}
