package memory

import (
	"context"
	"sync"
	"time"

	"places-cache/pkg/cache"
)

// MemoryCache is an in-process implementation of cache.CacheLayer.
// It keeps one map per table and provides thread-safe operations with optional
// LRU eviction. Expired entries are hidden from Get but only removed by
// DeleteExpired, matching the shared-store semantics of the other layers.
type MemoryCache struct {
	// tables stores the entries per table
	tables map[cache.Table]map[string]*entry

	// mu protects concurrent access to tables
	mu sync.RWMutex

	// config holds the cache configuration
	config MemoryCacheConfig
}

// entry wraps a cache entry with LRU bookkeeping
type entry struct {
	cache.CacheEntry
	accessedAt time.Time
}

// MemoryCacheConfig holds configuration for the memory cache
type MemoryCacheConfig struct {
	// Name is the cache layer identifier
	Name string

	// MaxSize is the maximum number of entries per table (0 = unlimited)
	MaxSize int

	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// NewMemoryCache creates a new in-memory cache with the given configuration.
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	tables := make(map[cache.Table]map[string]*entry, len(cache.Tables))
	for _, t := range cache.Tables {
		tables[t] = make(map[string]*entry)
	}

	return &MemoryCache{
		tables: tables,
		config: config,
	}
}

// Get retrieves a non-expired entry from the table.
func (c *MemoryCache) Get(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(table, key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tables == nil {
		return nil, cache.ErrLayerUnavailable
	}

	e, exists := c.tables[table][key]
	if !exists {
		return nil, cache.ErrKeyNotFound
	}

	now := c.config.Now()
	if e.IsExpired(now) {
		return nil, cache.ErrKeyNotFound
	}

	e.accessedAt = now
	out := e.CacheEntry
	return &out, nil
}

// Upsert stores an entry, overwriting any entry with the same key.
// Enforces MaxSize by evicting the least recently used entry if necessary.
func (c *MemoryCache) Upsert(ctx context.Context, table cache.Table, ce cache.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(table, ce.Key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tables == nil {
		return cache.ErrLayerUnavailable
	}

	rows := c.tables[table]
	if _, exists := rows[ce.Key]; !exists && c.config.MaxSize > 0 && len(rows) >= c.config.MaxSize {
		var lruKey string
		var lruTime time.Time

		for k, e := range rows {
			if lruKey == "" || e.accessedAt.Before(lruTime) {
				lruKey = k
				lruTime = e.accessedAt
			}
		}

		if lruKey != "" {
			delete(rows, lruKey)
		}
	}

	payload := make([]byte, len(ce.Payload))
	copy(payload, ce.Payload)
	ce.Payload = payload

	rows[ce.Key] = &entry{
		CacheEntry: ce,
		accessedAt: c.config.Now(),
	}

	return nil
}

// DeleteExpired removes entries whose ExpiresAt is before now.
func (c *MemoryCache) DeleteExpired(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
	return c.deleteWhere(ctx, table, func(e *entry) bool {
		return e.ExpiresAt.Before(now)
	})
}

// DeleteCreatedSince removes entries created at or after since.
func (c *MemoryCache) DeleteCreatedSince(ctx context.Context, table cache.Table, since time.Time) (int64, error) {
	return c.deleteWhere(ctx, table, func(e *entry) bool {
		return !e.CreatedAt.Before(since)
	})
}

func (c *MemoryCache) deleteWhere(ctx context.Context, table cache.Table, match func(*entry) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !table.Valid() {
		return 0, cache.ErrInvalidTable
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tables == nil {
		return 0, cache.ErrLayerUnavailable
	}

	var removed int64
	for key, e := range c.tables[table] {
		if match(e) {
			delete(c.tables[table], key)
			removed++
		}
	}

	return removed, nil
}

// Name returns the cache layer name.
func (c *MemoryCache) Name() string {
	return c.config.Name
}

// Close clears all data. Subsequent operations return ErrLayerUnavailable.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.tables = nil
	c.mu.Unlock()

	return nil
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() MemoryCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := MemoryCacheStats{
		Sizes:    make(map[cache.Table]int, len(c.tables)),
		MaxSize:  c.config.MaxSize,
		Capacity: c.config.MaxSize,
	}
	for t, rows := range c.tables {
		stats.Sizes[t] = len(rows)
	}

	if stats.Capacity == 0 {
		stats.Capacity = -1 // Unlimited
	}

	return stats
}

// MemoryCacheStats holds cache statistics.
type MemoryCacheStats struct {
	Sizes    map[cache.Table]int // Current number of entries per table
	MaxSize  int                 // Maximum allowed entries per table (0 = unlimited)
	Capacity int                 // Effective capacity (-1 = unlimited)
}

func validate(table cache.Table, key string) error {
	if !table.Valid() {
		return cache.ErrInvalidTable
	}
	return cache.ValidateKey(key)
}
