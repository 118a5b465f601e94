package cache

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

const defaultWatchInterval = 10 * time.Second

// watchTarget tracks one file rule. modTime is the last observed mtime and
// exists distinguishes "never seen" from "seen and then removed".
type watchTarget struct {
	path    string
	tags    []string
	modTime time.Time
	exists  bool
}

// Watcher invalidates cache entries when watched files change on disk.
// Detection is mtime polling through os.Stat; CheckForChanges is driven by
// the status reporter schedule or called manually after known writes.
//
// A rule with tags invalidates those tags on change. A rule without tags
// clears the whole cache.
type Watcher struct {
	logger   types.Logger
	store    *Store
	interval time.Duration

	mu      sync.Mutex
	targets map[string]*watchTarget
}

func NewWatcher(config *types.WatcherConfig, logger types.Logger, store *Store) (*Watcher, error) {
	interval := defaultWatchInterval
	var rules []types.WatchRule

	if config != nil {
		parsed, err := parseDurationSetting(config.Interval, defaultWatchInterval)
		if err != nil {
			return nil, types.WrapError(err, "invalid watcher interval")
		}
		interval = parsed
		rules = config.Rules
	}

	watcher := &Watcher{
		logger:   logger,
		store:    store,
		interval: interval,
		targets:  make(map[string]*watchTarget),
	}

	for _, rule := range rules {
		if err := watcher.Watch(rule.Path, rule.Tags...); err != nil {
			return nil, err
		}
	}

	return watcher, nil
}

// Interval reports the configured polling cadence. The watcher does not run
// its own timer; whoever schedules the polls reads this.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// Watch registers a file. The current mtime becomes the baseline, so only
// changes after registration fire. Watching a path twice replaces its rule.
func (w *Watcher) Watch(path string, tags ...string) error {
	if path == "" {
		return types.ErrWatcherPathEmpty
	}

	target := &watchTarget{
		path: path,
		tags: append([]string(nil), tags...),
	}

	if info, err := os.Stat(path); err == nil {
		target.modTime = info.ModTime()
		target.exists = true
	} else {
		w.logger.Debug("Watched file not found yet", zap.String("path", path))
	}

	w.mu.Lock()
	w.targets[path] = target
	w.mu.Unlock()

	w.logger.Info("Watching file for cache invalidation",
		zap.String("path", path),
		zap.Strings("tags", tags))

	return nil
}

// Unwatch drops a rule. Unknown paths are ignored.
func (w *Watcher) Unwatch(path string) {
	w.mu.Lock()
	delete(w.targets, path)
	w.mu.Unlock()
}

// CheckForChanges polls every registered file once and reports whether any
// invalidation fired. A file appearing for the first time only sets the
// baseline; a file that disappears is noted and re-baselined when it returns.
func (w *Watcher) CheckForChanges() bool {
	w.mu.Lock()
	var changed []*watchTarget
	for _, target := range w.targets {
		if w.refreshTarget(target) {
			changed = append(changed, &watchTarget{
				path: target.path,
				tags: append([]string(nil), target.tags...),
			})
		}
	}
	w.mu.Unlock()

	// Invalidation runs outside the watcher lock: callbacks fired by the
	// store may register or drop watch rules.
	for _, target := range changed {
		w.invalidateFor(target)
	}

	return len(changed) > 0
}

// refreshTarget updates bookkeeping for one target and reports whether its
// file changed since the last poll. Caller holds w.mu.
func (w *Watcher) refreshTarget(target *watchTarget) bool {
	info, err := os.Stat(target.path)
	if err != nil {
		if target.exists {
			target.exists = false
			w.logger.Debug("Watched file disappeared", zap.String("path", target.path))
		}
		return false
	}

	if !target.exists {
		target.modTime = info.ModTime()
		target.exists = true
		w.logger.Debug("Watched file appeared", zap.String("path", target.path))
		return false
	}

	if info.ModTime().After(target.modTime) {
		target.modTime = info.ModTime()
		return true
	}

	return false
}

func (w *Watcher) invalidateFor(target *watchTarget) {
	if len(target.tags) == 0 {
		w.store.Clear()
		w.logger.Info("Watched file changed, cache cleared",
			zap.String("path", target.path))
		return
	}

	invalidated := 0
	for _, tag := range target.tags {
		invalidated += w.store.InvalidateByTag(tag)
	}

	w.logger.Info("Watched file changed, tagged entries invalidated",
		zap.String("path", target.path),
		zap.Strings("tags", target.tags),
		zap.Int("invalidated", invalidated))
}
