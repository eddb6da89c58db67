package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/logging"
	"places-cache/pkg/metrics"
	"places-cache/pkg/resilience"
	"places-cache/pkg/writer"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Chain manages multiple cache layers with automatic fallback and warm-up.
// Layers are ordered from fastest (L1) to slowest (LN); the last layer is the
// shared store of record. Chain itself implements cache.CacheLayer.
type Chain struct {
	layers      []cache.CacheLayer
	writers     []*writer.AsyncWriter
	sf          singleflight.Group
	ttlStrategy TTLStrategy
	metrics     metrics.MetricsCollector
	logger      *logging.Logger
	now         func() time.Time
}

// Config configures a chain.
type Config struct {
	// Metrics receives layer, writer and chain metrics (default: no-op)
	Metrics metrics.MetricsCollector

	// TTLStrategy decides per-layer expiry (default: UniformTTLStrategy)
	TTLStrategy TTLStrategy

	// Writer configures the warm-up writer of each layer
	Writer writer.AsyncWriterConfig

	// Resilience returns the breaker/timeout settings for layer i.
	// If nil, L1 gets a 100ms timeout and deeper layers 1s.
	Resilience func(i int) resilience.ResilientConfig

	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// New creates a new chain of cache layers with default configuration.
// Layers should be ordered from fastest to slowest (L1 to LN).
// All layers are automatically wrapped with resilience protection.
func New(layers ...cache.CacheLayer) (*Chain, error) {
	return NewWithConfig(Config{}, layers...)
}

// NewWithConfig creates a new chain with custom configuration.
func NewWithConfig(config Config, layers ...cache.CacheLayer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.TTLStrategy == nil {
		config.TTLStrategy = &UniformTTLStrategy{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Resilience == nil {
		config.Resilience = defaultResilience
	}
	if config.Writer.Workers == 0 {
		config.Writer.Workers = 2
	}

	resilientLayers := make([]cache.CacheLayer, len(layers))
	writers := make([]*writer.AsyncWriter, len(layers))
	for i, layer := range layers {
		rl := resilience.NewResilientLayerWithMetrics(layer, config.Resilience(i), config.Metrics)
		resilientLayers[i] = rl
		writers[i] = writer.NewAsyncWriterWithMetrics(rl, config.Writer, config.Metrics)
	}

	return &Chain{
		layers:      resilientLayers,
		writers:     writers,
		ttlStrategy: config.TTLStrategy,
		metrics:     config.Metrics,
		logger:      logging.Global().Named("chain"),
		now:         config.Now,
	}, nil
}

func defaultResilience(i int) resilience.ResilientConfig {
	config := resilience.DefaultResilientConfig()
	// L1 (memory) should be fast, deeper layers can be slower
	if i == 0 {
		return config.WithTimeout(100 * time.Millisecond)
	}
	return config.WithTimeout(1 * time.Second)
}

// Name returns a name describing the chain's layers.
func (c *Chain) Name() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Get retrieves an entry from the chain.
// It traverses layers in order until a hit, then warms upper layers asynchronously.
// Concurrent Gets for the same table and key share one traversal; the returned
// entry may be shared between callers and must not be mutated.
func (c *Chain) Get(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Joiners must not fail because the first caller gave up.
	flightCtx := context.WithoutCancel(ctx)
	result, err, _ := c.sf.Do(table.String()+"\x00"+key, func() (interface{}, error) {
		return c.getWithFallback(flightCtx, table, key)
	})
	if err != nil {
		return nil, err
	}

	return result.(*cache.CacheEntry), nil
}

// getWithFallback performs the actual chain traversal and warm-up.
// A layer error is treated like a miss for that layer; the chain reports a miss
// if any layer answered, and the last error only if every layer failed.
func (c *Chain) getWithFallback(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error) {
	start := time.Now()
	var lastErr error
	missed := false

	for i, layer := range c.layers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry, err := layer.Get(ctx, table, key)
		if err != nil {
			if cache.IsNotFound(err) {
				missed = true
			} else {
				lastErr = err
			}
			continue
		}

		if i > 0 {
			c.warmUpperLayers(ctx, table, *entry, i)
		}

		c.metrics.RecordChainGet(table.String(), true, i, time.Since(start))
		return entry, nil
	}

	c.metrics.RecordChainGet(table.String(), false, -1, time.Since(start))

	if missed || lastErr == nil {
		return nil, cache.ErrKeyNotFound
	}
	return nil, lastErr
}

// warmUpperLayers enqueues copies of the entry into every layer above the hit.
func (c *Chain) warmUpperLayers(ctx context.Context, table cache.Table, entry cache.CacheEntry, hitIndex int) {
	now := c.now()

	for i := hitIndex - 1; i >= 0; i-- {
		layerEntry := c.entryForLayer(i, entry, now)
		if err := c.writers[i].Write(ctx, table, layerEntry); err != nil {
			c.logger.Debug("warm-up write skipped",
				zap.String("layer", c.layers[i].Name()),
				zap.String("key", entry.Key),
				zap.Error(err),
			)
		}
	}
}

func (c *Chain) entryForLayer(i int, entry cache.CacheEntry, now time.Time) cache.CacheEntry {
	entry.ExpiresAt = c.ttlStrategy.ExpiresAt(i, len(c.layers), entry, now)
	return entry
}

// Upsert writes the entry to all layers in the chain.
// Every layer is attempted; failures are joined into the returned error.
func (c *Chain) Upsert(ctx context.Context, table cache.Table, entry cache.CacheEntry) error {
	now := c.now()
	var errs []error

	for i, layer := range c.layers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := layer.Upsert(ctx, table, c.entryForLayer(i, entry, now)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", layer.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// DeleteExpired removes expired rows from every layer.
// Upper layers hold copies, so the largest per-layer count is reported.
func (c *Chain) DeleteExpired(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
	return c.deleteAll(ctx, func(layer cache.CacheLayer) (int64, error) {
		return layer.DeleteExpired(ctx, table, now)
	})
}

// DeleteCreatedSince removes recently created rows from every layer.
func (c *Chain) DeleteCreatedSince(ctx context.Context, table cache.Table, since time.Time) (int64, error) {
	return c.deleteAll(ctx, func(layer cache.CacheLayer) (int64, error) {
		return layer.DeleteCreatedSince(ctx, table, since)
	})
}

func (c *Chain) deleteAll(ctx context.Context, del func(cache.CacheLayer) (int64, error)) (int64, error) {
	var removed int64
	var errs []error

	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		n, err := del(layer)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", layer.Name(), err))
		}
		if n > removed {
			removed = n
		}
	}

	return removed, errors.Join(errs...)
}

// Flush waits for pending warm-up writes to finish.
func (c *Chain) Flush(timeout time.Duration) error {
	for _, w := range c.writers {
		if err := w.Flush(timeout); err != nil {
			return err
		}
	}
	return nil
}

// WriterStats returns the combined statistics of all warm-up writers.
func (c *Chain) WriterStats() writer.AsyncWriterStats {
	var total writer.AsyncWriterStats
	for _, w := range c.writers {
		total = total.Add(w.Stats())
	}
	return total
}

// Close closes all layers in the chain.
// Returns the last error encountered, but attempts to close all layers.
func (c *Chain) Close() error {
	var lastErr error

	// Close async writers first so queued warm-ups land before layers go away
	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}

	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Layers returns a copy of the layers slice for inspection.
func (c *Chain) Layers() []cache.CacheLayer {
	layers := make([]cache.CacheLayer, len(c.layers))
	copy(layers, c.layers)
	return layers
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

// String returns a string representation of the chain.
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}
