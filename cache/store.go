package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

const (
	defaultTTL             = 5 * time.Second
	defaultMaxEntries      = 1000
	defaultCleanupInterval = 60 * time.Second

	// Flat per-entry bookkeeping estimate added on top of the textual
	// value and key lengths.
	entryOverheadBytes = 100
)

// Store is the synchronous cache engine: entry map, tag registry, dependency
// index, invalidation callbacks and change detectors, all guarded by one
// exclusive mutex. Public methods take the lock exactly once and delegate to
// unexported ...Unsafe helpers, so helpers may call each other freely.
// Callbacks collected during a critical section fire after the lock is
// released and may safely call back into the store.
type Store struct {
	logger types.Logger

	mu          sync.Mutex
	entries     map[string]*types.CacheEntry
	tagRegistry map[string]map[string]struct{}
	dependents  map[string]map[string]struct{}
	callbacks   map[string][]types.InvalidationCallback
	detectors   map[string]types.ChangeDetector
	stats       types.CacheStats
	lastCleanup time.Time

	defaultTTL      time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	fingerprint     types.FingerprintFunc
	instanceID      string
}

func NewStore(config *types.CacheConfig, logger types.Logger, opts ...StoreOption) (*Store, error) {
	if config == nil {
		config = &types.CacheConfig{}
	}

	ttl, err := parseDurationSetting(config.DefaultTTL, defaultTTL)
	if err != nil {
		return nil, types.WrapError(err, "invalid default_ttl")
	}

	cleanupInterval, err := parseDurationSetting(config.CleanupInterval, defaultCleanupInterval)
	if err != nil {
		return nil, types.WrapError(err, "invalid cleanup_interval")
	}

	maxEntries := defaultMaxEntries
	if config.MaxEntries > 0 {
		maxEntries = config.MaxEntries
	}

	s := &Store{
		logger:          logger,
		entries:         make(map[string]*types.CacheEntry),
		tagRegistry:     make(map[string]map[string]struct{}),
		dependents:      make(map[string]map[string]struct{}),
		callbacks:       make(map[string][]types.InvalidationCallback),
		detectors:       make(map[string]types.ChangeDetector),
		lastCleanup:     time.Now(),
		defaultTTL:      ttl,
		maxEntries:      maxEntries,
		cleanupInterval: cleanupInterval,
		fingerprint:     Fingerprint,
		instanceID:      uuid.NewString(),
	}

	for _, opt := range opts {
		opt(s)
	}

	logger.Info("Cache store initialized",
		zap.String("instance_id", s.instanceID),
		zap.Duration("default_ttl", s.defaultTTL),
		zap.Int("max_entries", s.maxEntries),
		zap.Duration("cleanup_interval", s.cleanupInterval))

	return s, nil
}

func parseDurationSetting(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, types.Errorf(types.ErrConfigInvalidDuration, "%q: %s", raw, err.Error())
	}
	if d <= 0 {
		return 0, types.Errorf(types.ErrConfigInvalidDuration, "%q must be positive", raw)
	}

	return d, nil
}

// InstanceID identifies this store in logs and stats exports.
func (s *Store) InstanceID() string {
	return s.instanceID
}

func (s *Store) Get(key string) (interface{}, bool) {
	return s.GetWithTTL(key, 0)
}

// GetWithTTL reads a key, judging expiry against ttlOverride instead of the
// store default (a per-entry custom TTL still wins). Zero means no override.
func (s *Store) GetWithTTL(key string, ttlOverride time.Duration) (interface{}, bool) {
	fallbackTTL := s.defaultTTL
	if ttlOverride > 0 {
		fallbackTTL = ttlOverride
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredUnsafe()

	entry, exists := s.entries[key]
	if !exists {
		s.stats.Misses++
		s.stats.UpdateHitRate()
		return nil, false
	}

	if entry.IsExpired(fallbackTTL) {
		// Passive expiry: silent removal, no callbacks.
		delete(s.entries, key)
		s.stats.Misses++
		s.stats.Evictions++
		s.stats.UpdateHitRate()
		s.logger.Debug("Cache expired", zap.String("key", key))
		return nil, false
	}

	entry.MarkAccess()
	s.stats.Hits++
	s.stats.UpdateHitRate()

	s.logger.Debug("Cache hit", zap.String("key", key), zap.Int64("access_count", entry.AccessCount))
	return entry.Value, true
}

// Put stores a plain time-based entry. When the key already holds a value
// with an identical fingerprint only the creation timestamp is refreshed:
// no registry updates, no dependency cascade, TotalEntries unchanged.
func (s *Store) Put(key string, value interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictForSpaceUnsafe()

	fingerprint := s.fingerprint(value)

	if existing, exists := s.entries[key]; exists && existing.Fingerprint == fingerprint {
		existing.CreatedAt = time.Now()
		s.logger.Debug("Cache refreshed (unchanged)", zap.String("key", key))
		return true
	}

	now := time.Now()
	s.entries[key] = &types.CacheEntry{
		Value:       value,
		CreatedAt:   now,
		LastAccess:  now,
		Fingerprint: fingerprint,
		Strategy:    types.StrategyTimeBased,
	}
	s.stats.TotalEntries = len(s.entries)

	s.logger.Debug("Cache stored", zap.String("key", key), zap.String("fingerprint", fingerprint))
	return true
}

// PutWithStrategy stores an entry with TTL, strategy, tag and dependency
// metadata. A content-change write whose detector reports "unchanged" only
// refreshes the timestamp. Every actual write ends by invalidating the
// direct dependents of key: one level, never transitive.
func (s *Store) PutWithStrategy(key string, value interface{}, opts ...types.PutOption) bool {
	options := &types.PutOptions{Strategy: types.StrategyTimeBased}
	for _, opt := range opts {
		opt(options)
	}

	var pending []pendingCallback

	s.mu.Lock()

	if options.Strategy == types.StrategyContentChange && options.Detector != nil {
		if existing, exists := s.entries[key]; exists && !options.Detector(existing.Value, value) {
			existing.CreatedAt = time.Now()
			s.logger.Debug("Content unchanged, refreshed timestamp", zap.String("key", key))
			s.mu.Unlock()
			return true
		}
	}

	s.evictForSpaceUnsafe()

	now := time.Now()
	entry := &types.CacheEntry{
		Value:       value,
		CreatedAt:   now,
		LastAccess:  now,
		Fingerprint: s.fingerprint(value),
		CustomTTL:   options.TTL,
		Strategy:    options.Strategy,
	}
	for _, tag := range options.Tags {
		entry.AddTag(tag)
	}
	for _, dep := range options.Dependencies {
		entry.AddDependency(dep)
	}

	s.registerTagsUnsafe(key, entry.Tags)
	s.registerDependenciesUnsafe(key, entry.Dependencies)

	if options.Detector != nil {
		s.detectors[key] = options.Detector
	}

	s.entries[key] = entry
	s.stats.TotalEntries = len(s.entries)

	s.logger.Debug("Cache stored with strategy",
		zap.String("key", key),
		zap.String("strategy", string(entry.Strategy)),
		zap.Strings("tags", entry.Tags),
		zap.Strings("dependencies", entry.Dependencies))

	s.cascadeDependentsUnsafe(key, &pending)

	s.mu.Unlock()

	s.firePending(pending)
	return true
}

// Invalidate removes a key and fires its callbacks. Registries keep their
// tag/dependency/callback records for the key; only the entry goes away.
func (s *Store) Invalidate(key string) bool {
	var pending []pendingCallback

	s.mu.Lock()
	removed := s.invalidateUnsafe(key, &pending)
	s.mu.Unlock()

	s.firePending(pending)
	return removed
}

// InvalidateByTag removes every entry registered under tag, returning how
// many still existed. The tag's registry record is dropped, so a second call
// returns 0.
func (s *Store) InvalidateByTag(tag string) int {
	var pending []pendingCallback

	s.mu.Lock()

	keys, exists := s.tagRegistry[tag]
	if !exists {
		s.mu.Unlock()
		return 0
	}

	snapshot := make([]string, 0, len(keys))
	for key := range keys {
		snapshot = append(snapshot, key)
	}

	invalidated := 0
	for _, key := range snapshot {
		if s.invalidateUnsafe(key, &pending) {
			invalidated++
		}
	}

	delete(s.tagRegistry, tag)

	s.logger.Info("Invalidated entries by tag", zap.String("tag", tag), zap.Int("count", invalidated))

	s.mu.Unlock()

	s.firePending(pending)
	return invalidated
}

// InvalidatePattern removes every entry whose key contains the substring and
// returns the number of matches. An empty pattern matches all keys.
func (s *Store) InvalidatePattern(pattern string) int {
	var pending []pendingCallback

	s.mu.Lock()

	matching := make([]string, 0)
	for key := range s.entries {
		if strings.Contains(key, pattern) {
			matching = append(matching, key)
		}
	}

	for _, key := range matching {
		s.invalidateUnsafe(key, &pending)
	}

	s.logger.Debug("Cache pattern invalidated", zap.String("pattern", pattern), zap.Int("count", len(matching)))

	s.mu.Unlock()

	s.firePending(pending)
	return len(matching)
}

// Clear empties the entry map and counts each removal as an eviction. The
// tag registry, dependency index, callbacks and detectors survive so keys
// can be re-populated with their old wiring; no callbacks fire.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.entries)
	s.entries = make(map[string]*types.CacheEntry)
	s.stats.Evictions += int64(count)
	s.stats.TotalEntries = 0

	s.logger.Info("Cache cleared", zap.Int("count", count))
	return count
}

func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysUnsafe()
}

func (s *Store) Stats() types.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsUnsafe()
}

func (s *Store) RegisterInvalidationCallback(key string, callback types.InvalidationCallback) {
	if callback == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.callbacks[key] = append(s.callbacks[key], callback)
}

// SetTTLForKey overrides the TTL of an existing entry. The creation
// timestamp is untouched, so the new TTL applies to the entry's current age.
func (s *Store) SetTTLForKey(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return false
	}

	entry.CustomTTL = ttl
	s.logger.Debug("Updated TTL", zap.String("key", key), zap.Duration("ttl", ttl))
	return true
}

// ExtendTTL re-dates the entry to now+additional. The entry is deliberately
// moved into the future rather than having its expiry extended additively.
func (s *Store) ExtendTTL(key string, additional time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return false
	}

	entry.CreatedAt = time.Now().Add(additional)
	s.logger.Debug("Extended TTL", zap.String("key", key), zap.Duration("additional", additional))
	return true
}

func (s *Store) EntryInfo(key string) (*types.EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil, false
	}

	age := time.Since(entry.CreatedAt)
	effectiveTTL := s.defaultTTL
	if entry.CustomTTL > 0 {
		effectiveTTL = entry.CustomTTL
	}
	timeToExpire := effectiveTTL - age
	if timeToExpire < 0 {
		timeToExpire = 0
	}

	return &types.EntryInfo{
		Key:          key,
		Age:          age.Round(10 * time.Millisecond),
		TimeToExpire: timeToExpire.Round(10 * time.Millisecond),
		AccessCount:  entry.AccessCount,
		LastAccess:   entry.LastAccess,
		Tags:         append([]string(nil), entry.Tags...),
		Dependencies: append([]string(nil), entry.Dependencies...),
		Strategy:     entry.Strategy,
		CustomTTL:    entry.CustomTTL,
		Fingerprint:  entry.Fingerprint,
		IsExpired:    entry.IsExpired(s.defaultTTL),
	}, true
}

// pendingCallback is an invalidation callback bound to the key it was
// registered for, queued during a critical section and fired after unlock.
type pendingCallback struct {
	key string
	fn  types.InvalidationCallback
}

func (s *Store) firePending(pending []pendingCallback) {
	for _, pc := range pending {
		s.invokeCallback(pc)
	}
}

func (s *Store) invokeCallback(pc pendingCallback) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Invalidation callback panicked",
				zap.String("key", pc.key),
				zap.Any("panic", r))
		}
	}()

	if err := pc.fn(pc.key); err != nil {
		s.logger.Error("Invalidation callback failed",
			zap.String("key", pc.key),
			zap.Error(err))
	}
}

// invalidateUnsafe removes the entry and queues its callbacks onto pending.
// Caller holds s.mu.
func (s *Store) invalidateUnsafe(key string, pending *[]pendingCallback) bool {
	if _, exists := s.entries[key]; !exists {
		return false
	}

	delete(s.entries, key)
	s.stats.Evictions++
	s.stats.TotalEntries = len(s.entries)

	for _, cb := range s.callbacks[key] {
		*pending = append(*pending, pendingCallback{key: key, fn: cb})
	}

	s.logger.Debug("Cache invalidated", zap.String("key", key))
	return true
}

// cleanupExpiredUnsafe sweeps expired entries at most once per cleanup
// interval. Sweep removals count as evictions but fire no callbacks and do
// not touch TotalEntries. Caller holds s.mu.
func (s *Store) cleanupExpiredUnsafe() int {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return 0
	}

	var expired []string
	for key, entry := range s.entries {
		if entry.IsExpired(s.defaultTTL) {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		delete(s.entries, key)
		s.stats.Evictions++
	}

	s.lastCleanup = now

	if len(expired) > 0 {
		s.logger.Debug("Cleaned up expired entries", zap.Int("count", len(expired)))
	}

	return len(expired)
}

// evictForSpaceUnsafe evicts least-recently-accessed entries until the store
// is under capacity. Caller holds s.mu.
func (s *Store) evictForSpaceUnsafe() {
	for len(s.entries) >= s.maxEntries {
		if !s.evictLRUUnsafe() {
			break
		}
	}
}

func (s *Store) evictLRUUnsafe() bool {
	if len(s.entries) == 0 {
		return false
	}

	var lruKey string
	var lruAccess time.Time
	first := true
	for key, entry := range s.entries {
		if first || entry.LastAccess.Before(lruAccess) {
			lruKey = key
			lruAccess = entry.LastAccess
			first = false
		}
	}

	delete(s.entries, lruKey)
	s.stats.Evictions++
	s.logger.Debug("Evicted LRU entry", zap.String("key", lruKey))
	return true
}

func (s *Store) registerTagsUnsafe(key string, tags []string) {
	for _, tag := range tags {
		if _, exists := s.tagRegistry[tag]; !exists {
			s.tagRegistry[tag] = make(map[string]struct{})
		}
		s.tagRegistry[tag][key] = struct{}{}
	}
}

func (s *Store) registerDependenciesUnsafe(key string, dependencies []string) {
	for _, dep := range dependencies {
		if _, exists := s.dependents[dep]; !exists {
			s.dependents[dep] = make(map[string]struct{})
		}
		s.dependents[dep][key] = struct{}{}
	}
}

// cascadeDependentsUnsafe invalidates every key that declared a dependency
// directly on changedKey. One level only: dependents of dependents are left
// alone. Caller holds s.mu.
func (s *Store) cascadeDependentsUnsafe(changedKey string, pending *[]pendingCallback) {
	dependents, exists := s.dependents[changedKey]
	if !exists {
		return
	}

	snapshot := make([]string, 0, len(dependents))
	for dependent := range dependents {
		snapshot = append(snapshot, dependent)
	}

	for _, dependent := range snapshot {
		if s.invalidateUnsafe(dependent, pending) {
			s.logger.Debug("Invalidated dependent",
				zap.String("key", dependent),
				zap.String("changed", changedKey))
		}
	}
}

func (s *Store) keysUnsafe() []string {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// statsUnsafe recomputes the memory estimate and hit rate and returns a value
// copy. The estimate is textual-length based, matching the exported figures.
// Caller holds s.mu.
func (s *Store) statsUnsafe() types.CacheStats {
	var memoryEstimate int64
	for key, entry := range s.entries {
		memoryEstimate += int64(len(fmt.Sprint(entry.Value)) + len(key) + entryOverheadBytes)
	}

	s.stats.MemorySizeBytes = memoryEstimate
	s.stats.TotalEntries = len(s.entries)
	s.stats.UpdateHitRate()

	return s.stats
}
