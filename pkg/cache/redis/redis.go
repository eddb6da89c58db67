package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"places-cache/pkg/cache"

	"github.com/redis/rueidis"
)

// RedisCache stores cache entries as JSON strings under "<prefix><table>:<key>".
// Redis expires keys natively at ExpiresAt; the stored entry still carries its
// timestamps so that reads re-check expiry and force-clear can match CreatedAt.
type RedisCache struct {
	client rueidis.Client
	name   string
	config RedisCacheConfig
}

type RedisCacheConfig struct {
	Name string
	// Addr is the Redis server address for single node/sentinel mode.
	// For cluster mode, use ClusterAddrs instead.
	// Examples: "localhost:6379", "redis.example.com:6379"
	Addr string
	// ClusterAddrs is a list of Redis cluster node addresses.
	// If set, cluster mode is enabled automatically.
	ClusterAddrs []string
	Username     string
	Password     string
	// DB is the Redis database number (0-15).
	// Note: In cluster mode, only DB 0 is supported.
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// ScanCount is the COUNT hint used when cleanup walks a table.
	ScanCount int64
	// DisableClientCache turns off RESP3 client-side caching tracking.
	// Entries are always read with plain GET, so tracking buys nothing here.
	DisableClientCache bool
	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		Name:               "redis",
		Addr:               "localhost:6379",
		DB:                 0,
		KeyPrefix:          "places:",
		DialTimeout:        5 * time.Second,
		WriteTimeout:       3 * time.Second,
		ScanCount:          200,
		DisableClientCache: true,
	}
}

// ClusterCacheConfig returns a configuration for Redis Cluster mode.
func ClusterCacheConfig(name string, clusterAddrs []string, password string) RedisCacheConfig {
	config := DefaultRedisCacheConfig()
	config.Name = name
	config.ClusterAddrs = clusterAddrs
	config.Password = password
	config.Addr = ""
	config.DB = 0
	return config
}

func NewRedisCache(config RedisCacheConfig) (*RedisCache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 200
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	if len(config.ClusterAddrs) > 0 {
		initAddress = config.ClusterAddrs
	} else if config.Addr != "" {
		initAddress = []string{config.Addr}
	} else {
		return nil, fmt.Errorf("redis: no addresses configured (set Addr or ClusterAddrs)")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		DisableCache:     config.DisableClientCache,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &RedisCache{
		client: client,
		name:   config.Name,
		config: config,
	}, nil
}

func (r *RedisCache) fullKey(table cache.Table, key string) string {
	return r.config.KeyPrefix + table.String() + ":" + key
}

func (r *RedisCache) Get(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error) {
	if !table.Valid() {
		return nil, cache.ErrInvalidTable
	}
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.fullKey(table, key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}

	var entry cache.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis get: failed to unmarshal: %w", err)
	}

	if entry.IsExpired(r.config.Now()) {
		return nil, cache.ErrCacheMiss
	}

	return &entry, nil
}

// Upsert overwrites the key and sets its Redis expiry to the entry's remaining TTL.
// An entry that is already expired is not stored; any previous value is removed
// so the overwrite still takes effect.
func (r *RedisCache) Upsert(ctx context.Context, table cache.Table, entry cache.CacheEntry) error {
	if !table.Valid() {
		return cache.ErrInvalidTable
	}
	if err := cache.ValidateKey(entry.Key); err != nil {
		return err
	}

	fullKey := r.fullKey(table, entry.Key)

	ttl := entry.TimeToLive(r.config.Now())
	if ttl < time.Millisecond {
		if err := r.client.Do(ctx, r.client.B().Del().Key(fullKey).Build()).Error(); err != nil {
			return fmt.Errorf("redis upsert: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis upsert: failed to marshal: %w", err)
	}

	cmd := r.client.B().Set().Key(fullKey).Value(string(data)).Px(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}

	return nil
}

func (r *RedisCache) DeleteExpired(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, table, func(e *cache.CacheEntry) bool {
		return e.ExpiresAt.Before(now)
	})
}

func (r *RedisCache) DeleteCreatedSince(ctx context.Context, table cache.Table, since time.Time) (int64, error) {
	return r.deleteWhere(ctx, table, func(e *cache.CacheEntry) bool {
		return !e.CreatedAt.Before(since)
	})
}

// deleteWhere walks the table with SCAN on every node, loads each page with
// one pipelined round of GETs and deletes the matching keys one by one, so
// no command spans more than one cluster slot.
func (r *RedisCache) deleteWhere(ctx context.Context, table cache.Table, match func(*cache.CacheEntry) bool) (int64, error) {
	if !table.Valid() {
		return 0, cache.ErrInvalidTable
	}

	pattern := r.fullKey(table, "*")
	var removed int64
	var errs []error

	for addr, node := range r.client.Nodes() {
		n, err := r.deleteOnNode(ctx, node, pattern, match)
		removed += n
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", addr, err))
		}
	}

	return removed, errors.Join(errs...)
}

func (r *RedisCache) deleteOnNode(ctx context.Context, node rueidis.Client, pattern string, match func(*cache.CacheEntry) bool) (int64, error) {
	var cursor uint64
	var removed int64

	for {
		cmd := node.B().Scan().Cursor(cursor).Match(pattern).Count(r.config.ScanCount).Build()
		page, err := node.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}

		doomed, err := r.matchKeys(ctx, page.Elements, match)
		if err != nil {
			return removed, err
		}

		n, err := r.deleteKeys(ctx, doomed)
		removed += n
		if err != nil {
			return removed, err
		}

		cursor = page.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (r *RedisCache) deleteKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = r.client.B().Del().Key(key).Build()
	}

	var removed int64
	var errs []error
	for i, resp := range r.client.DoMulti(ctx, cmds...) {
		n, err := resp.AsInt64()
		if err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", keys[i], err))
			continue
		}
		removed += n
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("redis delete: %w", errors.Join(errs...))
	}
	return removed, nil
}

func (r *RedisCache) matchKeys(ctx context.Context, keys []string, match func(*cache.CacheEntry) bool) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = r.client.B().Get().Key(key).Build()
	}

	var doomed []string
	var errs []error

	for i, resp := range r.client.DoMulti(ctx, cmds...) {
		data, err := resp.AsBytes()
		if err != nil {
			// Expired between SCAN and GET
			if rueidis.IsRedisNil(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("key %s: %w", keys[i], err))
			continue
		}

		var entry cache.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Unreadable rows cannot be served; treat them as removable.
			doomed = append(doomed, keys[i])
			continue
		}

		if match(&entry) {
			doomed = append(doomed, keys[i])
		}
	}

	if len(errs) > 0 {
		return doomed, fmt.Errorf("redis get: %w", errors.Join(errs...))
	}

	return doomed, nil
}

func (r *RedisCache) Name() string {
	return r.name
}

func (r *RedisCache) Close() error {
	r.client.Close()
	return nil
}
