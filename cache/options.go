package cache

import (
	"time"

	"github.com/saiset-co/sai-cache/types"
)

// WithTTL sets a per-entry TTL that overrides the store default.
func WithTTL(ttl time.Duration) types.PutOption {
	return func(o *types.PutOptions) {
		o.TTL = ttl
	}
}

// WithStrategy selects the invalidation strategy for the entry.
func WithStrategy(strategy types.Strategy) types.PutOption {
	return func(o *types.PutOptions) {
		o.Strategy = strategy
	}
}

// WithTags attaches tags for group invalidation.
func WithTags(tags ...string) types.PutOption {
	return func(o *types.PutOptions) {
		o.Tags = append(o.Tags, tags...)
	}
}

// WithDependencies declares keys this entry depends on: re-writing any of
// them invalidates this entry.
func WithDependencies(keys ...string) types.PutOption {
	return func(o *types.PutOptions) {
		o.Dependencies = append(o.Dependencies, keys...)
	}
}

// WithChangeDetector installs a detector consulted on content-change writes.
func WithChangeDetector(detector types.ChangeDetector) types.PutOption {
	return func(o *types.PutOptions) {
		o.Detector = detector
	}
}

// StoreOption tweaks store construction.
type StoreOption func(*Store)

// WithFingerprintFunc replaces the default content fingerprint.
func WithFingerprintFunc(fn types.FingerprintFunc) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.fingerprint = fn
		}
	}
}
