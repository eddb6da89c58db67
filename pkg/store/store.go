// Package store assembles the cache tiers (in-process, redis, SQL) into one
// chain the lookup service reads and writes through.
package store

import (
	"errors"
	"fmt"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/cache/memory"
	"places-cache/pkg/cache/redis"
	"places-cache/pkg/cache/sqlstore"
	"places-cache/pkg/chain"
	"places-cache/pkg/logging"
	"places-cache/pkg/metrics"
	"places-cache/pkg/writer"

	"go.uber.org/zap"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = sqlstore.DriverSQLite
	DriverPostgres = sqlstore.DriverPostgres
)

// Config selects the cache tiers. Driver is the store of record; an
// in-process tier and a redis tier can sit in front of it.
type Config struct {
	// Driver is the store of record: memory, sqlite3 or postgres
	Driver string `yaml:"driver" default:"memory"`

	// DSN is the SQL data source name (sqlite3 and postgres)
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"maxOpenConns" default:"25"`
	MaxIdleConns    int           `yaml:"maxIdleConns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" default:"5m"`

	Memory MemoryTierConfig `yaml:"memory"`
	Redis  RedisTierConfig  `yaml:"redis"`

	// WriteQueueSize bounds each tier's warm-up queue
	WriteQueueSize int `yaml:"writeQueueSize" default:"1000"`
}

// MemoryTierConfig configures the in-process tier. It is only used in front
// of a remote store; with the memory driver it is the store itself.
type MemoryTierConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// MaxSize is the per-table entry limit (0 = unlimited)
	MaxSize int `yaml:"maxSize" default:"10000"`
	// MaxTTL caps how long the tier keeps a copy when a remote tier sits behind it
	MaxTTL time.Duration `yaml:"maxTTL" default:"10m"`
}

// RedisTierConfig configures the optional redis tier.
type RedisTierConfig struct {
	// Addr enables the tier when set
	Addr         string   `yaml:"addr"`
	ClusterAddrs []string `yaml:"clusterAddrs"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	KeyPrefix    string   `yaml:"keyPrefix" default:"places:"`
	// MaxTTL caps how long the tier keeps a copy when a SQL store sits behind it
	MaxTTL time.Duration `yaml:"maxTTL" default:"24h"`
}

// Enabled reports whether a redis tier is configured.
func (r RedisTierConfig) Enabled() bool {
	return r.Addr != "" || len(r.ClusterAddrs) > 0
}

// Validate checks the driver and its DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("store: dsn is required for driver %q", c.Driver)
		}
		return nil
	default:
		return fmt.Errorf("store: unknown driver %q", c.Driver)
	}
}

// Option configures Open.
type Option func(*options)

type options struct {
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// WithMetrics reports tier, writer and chain metrics to mc.
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(o *options) { o.metrics = mc }
}

// WithClock sets the time source of every tier.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Open builds the tiers described by cfg, fastest first, and chains them.
// Tiers opened before a failure are closed again.
func Open(cfg Config, opts ...Option) (*chain.Chain, error) {
	o := options{metrics: metrics.NoOpCollector{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.Global().Named("store")

	var (
		layers []cache.CacheLayer
		caps   []time.Duration
	)
	closeAll := func() {
		for _, l := range layers {
			_ = l.Close()
		}
	}

	remote := cfg.Driver != DriverMemory || cfg.Redis.Enabled()
	if !remote || cfg.Memory.Enabled {
		layers = append(layers, memory.NewMemoryCache(memory.MemoryCacheConfig{
			Name:    "memory",
			MaxSize: cfg.Memory.MaxSize,
			Now:     o.now,
		}))
		caps = append(caps, cfg.Memory.MaxTTL)
	}

	if cfg.Redis.Enabled() {
		var rc redis.RedisCacheConfig
		if len(cfg.Redis.ClusterAddrs) > 0 {
			rc = redis.ClusterCacheConfig("redis", cfg.Redis.ClusterAddrs, cfg.Redis.Password)
		} else {
			rc = redis.DefaultRedisCacheConfig()
			rc.Addr = cfg.Redis.Addr
			rc.Password = cfg.Redis.Password
			rc.DB = cfg.Redis.DB
		}
		rc.Username = cfg.Redis.Username
		if cfg.Redis.KeyPrefix != "" {
			rc.KeyPrefix = cfg.Redis.KeyPrefix
		}
		rc.Now = o.now

		layer, err := redis.NewRedisCache(rc)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("store: %w", err)
		}
		layers = append(layers, layer)
		caps = append(caps, cfg.Redis.MaxTTL)
	}

	if cfg.Driver == DriverSQLite || cfg.Driver == DriverPostgres {
		layer, err := sqlstore.New(sqlstore.Config{
			Name:            cfg.Driver,
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			Now:             o.now,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("store: %w", err)
		}
		layers = append(layers, layer)
		caps = append(caps, 0)
	}

	if len(layers) == 0 {
		return nil, errors.New("store: no tiers configured")
	}
	// the last tier is the store of record and keeps each entry's own expiry
	caps[len(caps)-1] = 0

	c, err := chain.NewWithConfig(chain.Config{
		Metrics:     o.metrics,
		TTLStrategy: &chain.CustomTTLStrategy{MaxTTLs: caps},
		Writer:      writer.AsyncWriterConfig{QueueSize: cfg.WriteQueueSize},
		Now:         o.now,
	}, layers...)
	if err != nil {
		closeAll()
		return nil, err
	}

	logger.Info("cache store opened", zap.String("tiers", c.String()))
	return c, nil
}
