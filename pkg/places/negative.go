package places

import (
	"sync"
	"time"
)

// negativeEntry records a place id the provider reported as missing.
type negativeEntry struct {
	cachedAt  time.Time
	expiresAt time.Time
}

// NegativeCache remembers place ids the provider answered NOT_FOUND or
// INVALID_REQUEST for, so repeated batch lookups skip them for a while.
type NegativeCache struct {
	entries     map[string]negativeEntry
	ttl         time.Duration
	now         func() time.Time
	mu          sync.RWMutex
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// NewNegativeCache creates a negative cache. ttl determines how long a missing
// id is remembered.
func NewNegativeCache(ttl time.Duration) *NegativeCache {
	return newNegativeCache(ttl, time.Now)
}

func newNegativeCache(ttl time.Duration, now func() time.Time) *NegativeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	nc := &NegativeCache{
		entries:     make(map[string]negativeEntry),
		ttl:         ttl,
		now:         now,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go nc.cleanup()

	return nc
}

// Contains reports whether id is remembered as missing and not yet expired.
func (nc *NegativeCache) Contains(id string) bool {
	nc.mu.RLock()
	defer nc.mu.RUnlock()

	entry, ok := nc.entries[id]
	if !ok {
		return false
	}
	return nc.now().Before(entry.expiresAt)
}

// Add remembers id as missing.
func (nc *NegativeCache) Add(id string) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	now := nc.now()
	nc.entries[id] = negativeEntry{
		cachedAt:  now,
		expiresAt: now.Add(nc.ttl),
	}
}

// Remove forgets id.
func (nc *NegativeCache) Remove(id string) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	delete(nc.entries, id)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (nc *NegativeCache) Close() {
	nc.closeOnce.Do(func() {
		close(nc.stopCleanup)
		<-nc.cleanupDone
	})
}

// cleanup periodically drops expired entries, twice per TTL period.
func (nc *NegativeCache) cleanup() {
	defer close(nc.cleanupDone)

	ticker := time.NewTicker(nc.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			nc.purgeExpired()
		case <-nc.stopCleanup:
			return
		}
	}
}

func (nc *NegativeCache) purgeExpired() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	now := nc.now()
	purged := 0
	for id, entry := range nc.entries {
		if !now.Before(entry.expiresAt) {
			delete(nc.entries, id)
			purged++
		}
	}
	return purged
}

// Stats returns statistics about the negative cache.
func (nc *NegativeCache) Stats() NegativeCacheStats {
	nc.mu.RLock()
	defer nc.mu.RUnlock()

	return NegativeCacheStats{
		Count: len(nc.entries),
		TTL:   nc.ttl,
	}
}

// NegativeCacheStats holds statistics about negative caching.
type NegativeCacheStats struct {
	Count int           `json:"count"`
	TTL   time.Duration `json:"ttl"`
}
