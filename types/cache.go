package types

import (
	"time"
)

type Strategy string

const (
	StrategyTimeBased     Strategy = "time_based"
	StrategyContentChange Strategy = "content_change"
	StrategyDependency    Strategy = "dependency"
	StrategyManual        Strategy = "manual"
)

// InvalidationCallback runs after an entry has been explicitly invalidated.
// Callbacks fire outside the store lock and may call back into the cache.
type InvalidationCallback func(key string) error

// ChangeDetector reports whether newValue differs from oldValue. Detectors
// run inside the store's critical section and must not call back into the
// cache.
type ChangeDetector func(oldValue, newValue interface{}) bool

type FingerprintFunc func(value interface{}) string

type CacheManager interface {
	LifecycleManager
	Get(key string) (interface{}, bool)
	GetWithTTL(key string, ttlOverride time.Duration) (interface{}, bool)
	Put(key string, value interface{}) bool
	PutWithStrategy(key string, value interface{}, opts ...PutOption) bool
	GetOrCompute(key string, compute func() (interface{}, error), ttl time.Duration) (interface{}, error)
	Invalidate(key string) bool
	InvalidateByTag(tag string) int
	InvalidatePattern(pattern string) int
	Clear() int
	Keys() []string
	Stats() CacheStats
	EntryInfo(key string) (*EntryInfo, bool)
	RegisterInvalidationCallback(key string, callback InvalidationCallback)
	SetTTLForKey(key string, ttl time.Duration) bool
	ExtendTTL(key string, additional time.Duration) bool
	HealthReport() *CacheHealthReport
	VisualSummary() *CacheVisualSummary
	ExportStats() ([]byte, error)
	LogStatus(operation string)
	LogPeriodicStatus(force bool)
	Checker(name string) HealthChecker
}

type CacheManagerCreator func(config interface{}) (CacheManager, error)

type PutOptions struct {
	TTL          time.Duration
	Strategy     Strategy
	Tags         []string
	Dependencies []string
	Detector     ChangeDetector
}

type PutOption func(*PutOptions)

type CacheEntry struct {
	Value        interface{}   `json:"value"`
	CreatedAt    time.Time     `json:"created_at"`
	AccessCount  int64         `json:"access_count"`
	LastAccess   time.Time     `json:"last_access"`
	Fingerprint  string        `json:"fingerprint"`
	Tags         []string      `json:"tags,omitempty"`
	CustomTTL    time.Duration `json:"custom_ttl,omitempty"`
	Strategy     Strategy      `json:"strategy"`
	Dependencies []string      `json:"dependencies,omitempty"`
}

// IsExpired checks the entry age against its own TTL, falling back to
// fallbackTTL when no per-entry override is set. Manual entries never expire.
func (e *CacheEntry) IsExpired(fallbackTTL time.Duration) bool {
	if e.Strategy == StrategyManual {
		return false
	}
	ttl := fallbackTTL
	if e.CustomTTL > 0 {
		ttl = e.CustomTTL
	}
	return time.Since(e.CreatedAt) > ttl
}

func (e *CacheEntry) MarkAccess() {
	e.AccessCount++
	e.LastAccess = time.Now()
}

func (e *CacheEntry) AddTag(tag string) {
	for _, existing := range e.Tags {
		if existing == tag {
			return
		}
	}
	e.Tags = append(e.Tags, tag)
}

func (e *CacheEntry) AddDependency(key string) {
	for _, existing := range e.Dependencies {
		if existing == key {
			return
		}
	}
	e.Dependencies = append(e.Dependencies, key)
}

type CacheStats struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	Evictions       int64   `json:"evictions"`
	TotalEntries    int     `json:"total_entries"`
	MemorySizeBytes int64   `json:"memory_size_bytes"`
	HitRate         float64 `json:"hit_rate"`
}

// UpdateHitRate recomputes the hit rate as a 0-100 percentage. A cache that
// has seen no requests reports zero.
func (s *CacheStats) UpdateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	} else {
		s.HitRate = 0
	}
}

type EntryInfo struct {
	Key          string        `json:"key"`
	Age          time.Duration `json:"age"`
	TimeToExpire time.Duration `json:"time_to_expire"`
	AccessCount  int64         `json:"access_count"`
	LastAccess   time.Time     `json:"last_access"`
	Tags         []string      `json:"tags,omitempty"`
	Dependencies []string      `json:"dependencies,omitempty"`
	Strategy     Strategy      `json:"strategy"`
	CustomTTL    time.Duration `json:"custom_ttl,omitempty"`
	Fingerprint  string        `json:"fingerprint"`
	IsExpired    bool          `json:"is_expired"`
}

type CacheHealthReport struct {
	BasicStats       CacheStats            `json:"basic_stats"`
	AdvancedStats    CacheAdvancedStats    `json:"advanced_stats"`
	HealthIndicators CacheHealthIndicators `json:"health_indicators"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

type CacheAdvancedStats struct {
	StrategyDistribution map[Strategy]int `json:"strategy_distribution"`
	TagDistribution      map[string]int   `json:"tag_distribution"`
	TotalDependencies    int              `json:"total_dependencies"`
	ExpiredEntries       int              `json:"expired_entries"`
	ActiveTags           int              `json:"active_tags"`
	DependencyChains     int              `json:"dependency_chains"`
}

type CacheHealthIndicators struct {
	CacheEfficiency  string `json:"cache_efficiency"`
	MemoryUsage      string `json:"memory_usage"`
	ExpirationHealth string `json:"expiration_health"`
}

type CacheVisualSummary struct {
	Performance PerformanceSummary `json:"performance"`
	Capacity    CapacitySummary    `json:"capacity"`
	Memory      MemorySummary      `json:"memory"`
	Activity    ActivitySummary    `json:"activity"`
	Freshness   FreshnessSummary   `json:"freshness"`
	LastUpdate  time.Time          `json:"last_update"`
	Clock       string             `json:"clock"`
}

type PerformanceSummary struct {
	Level   string  `json:"level"`
	Emoji   string  `json:"emoji"`
	HitRate float64 `json:"hit_rate"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
}

type CapacitySummary struct {
	Entries      int     `json:"entries"`
	MaxEntries   int     `json:"max_entries"`
	UsagePercent float64 `json:"usage_percent"`
	Status       string  `json:"status"`
	Emoji        string  `json:"emoji"`
}

type MemorySummary struct {
	UsageKB       float64 `json:"usage_kb"`
	AvgEntryBytes int64   `json:"avg_entry_bytes"`
}

type ActivitySummary struct {
	TotalRequests int64   `json:"total_requests"`
	Evictions     int64   `json:"evictions"`
	EvictionRate  float64 `json:"eviction_rate"`
}

type FreshnessSummary struct {
	OldestEntryAge   time.Duration `json:"oldest_entry_age"`
	FreshnessPercent float64       `json:"freshness_percent"`
}

type CacheStatsExport struct {
	InstanceID        string    `json:"instance_id"`
	Hits              int64     `json:"hits"`
	Misses            int64     `json:"misses"`
	Evictions         int64     `json:"evictions"`
	TotalEntries      int       `json:"total_entries"`
	MemorySizeBytes   int64     `json:"memory_size_bytes"`
	HitRatePercent    float64   `json:"hit_rate_percent"`
	DefaultTTLSeconds float64   `json:"default_ttl_seconds"`
	MaxEntries        int       `json:"max_entries"`
	Keys              []string  `json:"cache_keys"`
	ExportedAt        time.Time `json:"exported_at"`
}
