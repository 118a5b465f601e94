package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

const (
	defaultReportSchedule = "@every 5m"
	reporterStopTimeout   = 10 * time.Second
)

// Reporter emits scheduled cache status reports and keeps the cache gauges
// current. When a file watcher is attached it also drives the watcher polls,
// so file-based invalidation works without any caller traffic.
type Reporter struct {
	logger      types.Logger
	store       *Store
	analytics   *Analytics
	watcher     *Watcher
	metrics     types.MetricsManager
	cron        *cron.Cron
	schedule    string
	running     int32
	stopTimeout time.Duration
}

// NewReporter validates the schedule and timezone up front so a broken
// configuration fails at construction rather than at the first tick. The
// watcher and metrics arguments may be nil.
func NewReporter(config *types.ReporterConfig, logger types.Logger, store *Store, analytics *Analytics, watcher *Watcher, metrics types.MetricsManager) (*Reporter, error) {
	if config == nil {
		config = &types.ReporterConfig{Schedule: defaultReportSchedule}
	}

	if config.Schedule == "" {
		return nil, types.ErrReporterScheduleEmpty
	}

	timezone := time.UTC
	if config.Timezone != "" {
		loc, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, types.Errorf(types.ErrReporterTimezoneInvalid, "%q: %v", config.Timezone, err)
		}
		timezone = loc
	}

	cronLog := cronLogAdapter{logger: logger}

	reporter := &Reporter{
		logger:    logger,
		store:     store,
		analytics: analytics,
		watcher:   watcher,
		metrics:   metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLog)),
		),
		schedule:    config.Schedule,
		stopTimeout: reporterStopTimeout,
	}

	if _, err := reporter.cron.AddFunc(config.Schedule, reporter.report); err != nil {
		return nil, types.Errorf(types.ErrReporterScheduleInvalid, "%q: %v", config.Schedule, err)
	}

	if watcher != nil {
		pollSpec := "@every " + watcher.Interval().String()
		if _, err := reporter.cron.AddFunc(pollSpec, reporter.poll); err != nil {
			return nil, types.WrapError(err, "failed to schedule watcher polls")
		}
	}

	return reporter, nil
}

func (r *Reporter) Start() error {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return types.ErrReporterAlreadyRunning
	}

	r.cron.Start()

	r.logger.Info("Status reporter started",
		zap.String("schedule", r.schedule),
		zap.Bool("watcher_attached", r.watcher != nil))

	return nil
}

func (r *Reporter) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.running, 1, 0) {
		return types.ErrReporterNotRunning
	}

	stopCtx := r.cron.Stop()

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()

	select {
	case <-stopCtx.Done():
		r.logger.Info("Status reporter stopped")
	case <-timer.C:
		r.logger.Warn("Status reporter stop timeout, a report may still be running")
	}

	return nil
}

func (r *Reporter) IsRunning() bool {
	return atomic.LoadInt32(&r.running) == 1
}

// report runs on the configured schedule. The schedule itself is the
// throttle, so the periodic gate is bypassed here.
func (r *Reporter) report() {
	r.analytics.LogPeriodicStatus(true)
	r.refreshGauges()
}

func (r *Reporter) poll() {
	r.watcher.CheckForChanges()
}

func (r *Reporter) refreshGauges() {
	if r.metrics == nil {
		return
	}

	stats := r.store.Stats()

	r.metrics.Gauge("cache_entries", nil).Set(float64(stats.TotalEntries))
	r.metrics.Gauge("cache_memory_bytes", nil).Set(float64(stats.MemorySizeBytes))
	r.metrics.Gauge("cache_hit_rate", nil).Set(stats.HitRate)
}

// cronLogAdapter bridges robfig/cron logging onto the structured logger.
// Scheduler chatter goes to debug, panics recovered by the cron chain to
// error.
type cronLogAdapter struct {
	logger types.Logger
}

func (l cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, cronFields(keysAndValues)...)
}

func (l cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(cronFields(keysAndValues), zap.Error(err))
	l.logger.Error(msg, fields...)
}

func cronFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
