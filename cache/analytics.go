package cache

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const (
	statusLogInterval = 300 * time.Second
	statusTopKeys     = 10

	memoryHighWatermarkBytes = 1 << 20
)

// Analytics derives health reports, visual summaries and status logs from a
// Store. Every report is computed in a single pass under the store's lock;
// nothing here mutates entries, registries or counters. The periodic-log
// timestamp is the only state Analytics owns, and it shares the store lock.
type Analytics struct {
	store         *Store
	logger        types.Logger
	lastStatusLog time.Time
}

func NewAnalytics(store *Store, logger types.Logger) *Analytics {
	return &Analytics{
		store:  store,
		logger: logger,
	}
}

func (a *Analytics) HealthReport() *types.CacheHealthReport {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	stats := a.store.statsUnsafe()

	strategyDistribution := make(map[types.Strategy]int)
	tagDistribution := make(map[string]int)
	totalDependencies := 0
	expired := 0

	for _, entry := range a.store.entries {
		strategyDistribution[entry.Strategy]++
		for _, tag := range entry.Tags {
			tagDistribution[tag]++
		}
		totalDependencies += len(entry.Dependencies)
		if entry.IsExpired(a.store.defaultTTL) {
			expired++
		}
	}

	indicators := types.CacheHealthIndicators{
		CacheEfficiency:  "needs_improvement",
		MemoryUsage:      "normal",
		ExpirationHealth: "good",
	}
	// A cache that has seen no requests has no efficiency to judge.
	if stats.HitRate >= 70 || stats.Hits+stats.Misses == 0 {
		indicators.CacheEfficiency = "good"
	}
	if stats.MemorySizeBytes >= memoryHighWatermarkBytes {
		indicators.MemoryUsage = "high"
	}
	if stats.TotalEntries > 0 && float64(expired) >= float64(stats.TotalEntries)*0.2 {
		indicators.ExpirationHealth = "cleanup_needed"
	}

	return &types.CacheHealthReport{
		BasicStats: stats,
		AdvancedStats: types.CacheAdvancedStats{
			StrategyDistribution: strategyDistribution,
			TagDistribution:      tagDistribution,
			TotalDependencies:    totalDependencies,
			ExpiredEntries:       expired,
			ActiveTags:           len(a.store.tagRegistry),
			DependencyChains:     len(a.store.dependents),
		},
		HealthIndicators: indicators,
		GeneratedAt:      time.Now(),
	}
}

func (a *Analytics) VisualSummary() *types.CacheVisualSummary {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	return a.visualSummaryUnsafe()
}

// visualSummaryUnsafe builds the dashboard-oriented snapshot. Caller holds
// the store lock.
func (a *Analytics) visualSummaryUnsafe() *types.CacheVisualSummary {
	stats := a.store.statsUnsafe()
	now := time.Now()

	level, levelEmoji := performanceLevel(stats.HitRate)

	usagePercent := 0.0
	if a.store.maxEntries > 0 {
		usagePercent = float64(stats.TotalEntries) / float64(a.store.maxEntries) * 100
	}
	capacity, capacityEmoji := capacityStatus(usagePercent)

	var avgEntryBytes int64
	if stats.TotalEntries > 0 {
		avgEntryBytes = stats.MemorySizeBytes / int64(stats.TotalEntries)
	}

	var oldestAge time.Duration
	for _, entry := range a.store.entries {
		if age := now.Sub(entry.CreatedAt); age > oldestAge {
			oldestAge = age
		}
	}

	freshness := 100.0
	if a.store.defaultTTL > 0 {
		freshness = math.Max(0, (a.store.defaultTTL.Seconds()-oldestAge.Seconds())/a.store.defaultTTL.Seconds()*100)
	}

	totalRequests := stats.Hits + stats.Misses
	evictionRate := float64(stats.Evictions) / math.Max(1, float64(totalRequests))

	return &types.CacheVisualSummary{
		Performance: types.PerformanceSummary{
			Level:   level,
			Emoji:   levelEmoji,
			HitRate: round1(stats.HitRate),
			Hits:    stats.Hits,
			Misses:  stats.Misses,
		},
		Capacity: types.CapacitySummary{
			Entries:      stats.TotalEntries,
			MaxEntries:   a.store.maxEntries,
			UsagePercent: round1(usagePercent),
			Status:       capacity,
			Emoji:        capacityEmoji,
		},
		Memory: types.MemorySummary{
			UsageKB:       round1(float64(stats.MemorySizeBytes) / 1024),
			AvgEntryBytes: avgEntryBytes,
		},
		Activity: types.ActivitySummary{
			TotalRequests: totalRequests,
			Evictions:     stats.Evictions,
			EvictionRate:  round2(evictionRate),
		},
		Freshness: types.FreshnessSummary{
			OldestEntryAge:   oldestAge.Round(10 * time.Millisecond),
			FreshnessPercent: round1(freshness),
		},
		LastUpdate: now,
		Clock:      now.Format("15:04:05"),
	}
}

func (a *Analytics) ExportStats() ([]byte, error) {
	a.store.mu.Lock()

	stats := a.store.statsUnsafe()
	export := types.CacheStatsExport{
		InstanceID:        a.store.instanceID,
		Hits:              stats.Hits,
		Misses:            stats.Misses,
		Evictions:         stats.Evictions,
		TotalEntries:      stats.TotalEntries,
		MemorySizeBytes:   stats.MemorySizeBytes,
		HitRatePercent:    round2(stats.HitRate),
		DefaultTTLSeconds: a.store.defaultTTL.Seconds(),
		MaxEntries:        a.store.maxEntries,
		Keys:              a.store.keysUnsafe(),
		ExportedAt:        time.Now(),
	}

	a.store.mu.Unlock()

	return utils.MarshalIndent(export)
}

// LogStatus emits one structured diagnostic record covering counters, memory,
// entry ages and the most recently accessed keys.
func (a *Analytics) LogStatus(operation string) {
	a.store.mu.Lock()
	fields := a.statusFieldsUnsafe(operation)
	a.store.mu.Unlock()

	a.logger.Info("Cache status report", fields...)
}

// LogPeriodicStatus is the rate-limited LogStatus used on the hot path: at
// most one report per 300s unless force is set. It also emits the one-line
// dashboard summary.
func (a *Analytics) LogPeriodicStatus(force bool) {
	a.store.mu.Lock()

	now := time.Now()
	if !force && !a.lastStatusLog.IsZero() && now.Sub(a.lastStatusLog) < statusLogInterval {
		a.store.mu.Unlock()
		return
	}
	a.lastStatusLog = now

	fields := a.statusFieldsUnsafe("periodic_status")
	summary := a.visualSummaryUnsafe()

	a.store.mu.Unlock()

	a.logger.Info("Cache status report", fields...)
	a.logger.Info("Dashboard status",
		zap.String("performance", summary.Performance.Emoji),
		zap.Float64("hit_rate", summary.Performance.HitRate),
		zap.String("capacity", summary.Capacity.Emoji),
		zap.Float64("usage_percent", summary.Capacity.UsagePercent),
		zap.Float64("memory_kb", summary.Memory.UsageKB))
}

// Checker adapts the health report into a types.HealthChecker so a host
// service can register the cache with its health manager. One degraded
// indicator reports degraded; two or more report unhealthy.
func (a *Analytics) Checker(name string) types.HealthChecker {
	return func(_ context.Context) types.HealthCheck {
		start := time.Now()
		report := a.HealthReport()

		degraded := 0
		if report.HealthIndicators.CacheEfficiency != "good" {
			degraded++
		}
		if report.HealthIndicators.MemoryUsage != "normal" {
			degraded++
		}
		if report.HealthIndicators.ExpirationHealth != "good" {
			degraded++
		}

		status := types.StatusHealthy
		message := "cache operating normally"
		switch {
		case degraded >= 2:
			status = types.StatusUnhealthy
			message = "multiple cache health indicators degraded"
		case degraded == 1:
			status = types.StatusDegraded
			message = "one cache health indicator degraded"
		}

		return types.HealthCheck{
			Name:      name,
			Status:    status,
			Message:   message,
			LastCheck: time.Now(),
			Duration:  time.Since(start),
			Details: map[string]interface{}{
				"hit_rate":          report.BasicStats.HitRate,
				"total_entries":     report.BasicStats.TotalEntries,
				"memory_size_bytes": report.BasicStats.MemorySizeBytes,
				"expired_entries":   report.AdvancedStats.ExpiredEntries,
			},
		}
	}
}

type keyActivity struct {
	Key      string   `json:"key"`
	Age      string   `json:"age"`
	Accesses int64    `json:"accesses"`
	Tags     []string `json:"tags,omitempty"`
}

// statusFieldsUnsafe collects the full status record. Caller holds the store
// lock; the returned fields carry no references into guarded state.
func (a *Analytics) statusFieldsUnsafe(operation string) []zap.Field {
	stats := a.store.statsUnsafe()
	now := time.Now()

	var oldestAge, newestAge, totalAge time.Duration
	first := true
	for _, entry := range a.store.entries {
		age := now.Sub(entry.CreatedAt)
		if first {
			oldestAge, newestAge = age, age
			first = false
		} else {
			if age > oldestAge {
				oldestAge = age
			}
			if age < newestAge {
				newestAge = age
			}
		}
		totalAge += age
	}

	var avgAge time.Duration
	if len(a.store.entries) > 0 {
		avgAge = totalAge / time.Duration(len(a.store.entries))
	}

	var avgEntryBytes int64
	if stats.TotalEntries > 0 {
		avgEntryBytes = stats.MemorySizeBytes / int64(stats.TotalEntries)
	}

	level, _ := performanceLevel(stats.HitRate)

	return []zap.Field{
		zap.String("operation", operation),
		zap.String("performance", level),
		zap.Float64("hit_rate", round1(stats.HitRate)),
		zap.Int64("hits", stats.Hits),
		zap.Int64("misses", stats.Misses),
		zap.Int64("evictions", stats.Evictions),
		zap.Int("entries", stats.TotalEntries),
		zap.Int("max_entries", a.store.maxEntries),
		zap.Float64("memory_kb", round1(float64(stats.MemorySizeBytes)/1024)),
		zap.Int64("avg_entry_bytes", avgEntryBytes),
		zap.Duration("newest_age", newestAge.Round(10*time.Millisecond)),
		zap.Duration("oldest_age", oldestAge.Round(10*time.Millisecond)),
		zap.Duration("avg_age", avgAge.Round(10*time.Millisecond)),
		zap.Duration("default_ttl", a.store.defaultTTL),
		zap.Duration("since_last_cleanup", now.Sub(a.store.lastCleanup).Round(10*time.Millisecond)),
		zap.Any("recent_keys", a.recentKeysUnsafe(now)),
	}
}

// recentKeysUnsafe lists the most recently accessed keys, newest first.
// Caller holds the store lock.
func (a *Analytics) recentKeysUnsafe(now time.Time) []keyActivity {
	type keyedEntry struct {
		key   string
		entry *types.CacheEntry
	}

	ordered := make([]keyedEntry, 0, len(a.store.entries))
	for key, entry := range a.store.entries {
		ordered = append(ordered, keyedEntry{key: key, entry: entry})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].entry.LastAccess.After(ordered[j].entry.LastAccess)
	})

	if len(ordered) > statusTopKeys {
		ordered = ordered[:statusTopKeys]
	}

	activity := make([]keyActivity, 0, len(ordered))
	for _, item := range ordered {
		activity = append(activity, keyActivity{
			Key:      item.key,
			Age:      now.Sub(item.entry.CreatedAt).Round(10 * time.Millisecond).String(),
			Accesses: item.entry.AccessCount,
			Tags:     append([]string(nil), item.entry.Tags...),
		})
	}

	return activity
}

func performanceLevel(hitRate float64) (string, string) {
	switch {
	case hitRate >= 80:
		return "excellent", "🟢"
	case hitRate >= 60:
		return "good", "🟡"
	case hitRate >= 40:
		return "average", "🟠"
	default:
		return "poor", "🔴"
	}
}

func capacityStatus(usagePercent float64) (string, string) {
	switch {
	case usagePercent >= 90:
		return "near_full", "🔴"
	case usagePercent >= 70:
		return "high", "🟡"
	default:
		return "normal", "🟢"
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
