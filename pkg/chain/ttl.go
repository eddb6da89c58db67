package chain

import (
	"time"

	"places-cache/pkg/cache"
)

// TTLStrategy decides how long each layer keeps its copy of an entry.
// Layers may shorten an entry's lifetime, never extend it, and CreatedAt is
// always left alone so recent-window cleanup still matches every copy.
type TTLStrategy interface {
	// ExpiresAt returns the expiry for the copy stored in layerIndex
	ExpiresAt(layerIndex, numLayers int, entry cache.CacheEntry, now time.Time) time.Time
}

// UniformTTLStrategy stores the same expiry in every layer.
type UniformTTLStrategy struct{}

// ExpiresAt returns the entry's own expiry.
func (s *UniformTTLStrategy) ExpiresAt(layerIndex, numLayers int, entry cache.CacheEntry, now time.Time) time.Time {
	return entry.ExpiresAt
}

// CustomTTLStrategy caps the lifetime per layer. A zero or missing cap leaves
// the entry's expiry unchanged.
type CustomTTLStrategy struct {
	MaxTTLs []time.Duration
}

// ExpiresAt returns the earlier of the entry's expiry and now+cap.
func (s *CustomTTLStrategy) ExpiresAt(layerIndex, numLayers int, entry cache.CacheEntry, now time.Time) time.Time {
	if layerIndex >= len(s.MaxTTLs) || s.MaxTTLs[layerIndex] <= 0 {
		return entry.ExpiresAt
	}

	capped := now.Add(s.MaxTTLs[layerIndex])
	if capped.Before(entry.ExpiresAt) {
		return capped
	}
	return entry.ExpiresAt
}
