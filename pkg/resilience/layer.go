package resilience

import (
	"context"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/logging"
	"places-cache/pkg/metrics"

	"go.uber.org/zap"
)

// ResilientLayer wraps a CacheLayer with resilience features including
// circuit breaker and timeout protection.
type ResilientLayer struct {
	layer       cache.CacheLayer
	breaker     *Breaker
	bulkTimeout time.Duration
	metrics     metrics.MetricsCollector
	logger      *logging.Logger
}

// NewResilientLayer creates a new resilient layer wrapper around the given cache layer.
// It adds circuit breaker protection and timeout enforcement to all operations.
func NewResilientLayer(layer cache.CacheLayer, config ResilientConfig) *ResilientLayer {
	return NewResilientLayerWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewResilientLayerWithMetrics creates a new resilient layer with custom metrics collector.
func NewResilientLayerWithMetrics(layer cache.CacheLayer, config ResilientConfig, metricsCollector metrics.MetricsCollector) *ResilientLayer {
	if metricsCollector == nil {
		metricsCollector = metrics.NoOpCollector{}
	}

	bulkTimeout := config.BulkTimeout
	if bulkTimeout <= 0 {
		bulkTimeout = config.Timeout
	}

	return &ResilientLayer{
		layer:       layer,
		breaker:     NewBreaker(layer.Name(), config, metricsCollector),
		bulkTimeout: bulkTimeout,
		metrics:     metricsCollector,
		logger:      logging.Global().Named("resilience").Named(layer.Name()),
	}
}

// Name returns the name of the underlying cache layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// Get retrieves an entry with timeout and circuit breaker protection.
// Misses pass through untouched and do not count against the breaker.
func (rl *ResilientLayer) Get(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error) {
	start := time.Now()

	var entry *cache.CacheEntry
	err := rl.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		entry, err = rl.layer.Get(ctx, table, key)
		return err
	})

	duration := time.Since(start)
	rl.metrics.RecordGet(rl.layer.Name(), table.String(), err == nil, duration)

	if err != nil {
		if !cache.IsNotFound(err) {
			rl.logFailure("get", table, err, duration, zap.String("key", key))
		}
		return nil, err
	}

	return entry, nil
}

// Upsert stores an entry with timeout and circuit breaker protection.
func (rl *ResilientLayer) Upsert(ctx context.Context, table cache.Table, entry cache.CacheEntry) error {
	start := time.Now()

	err := rl.breaker.Execute(ctx, func(ctx context.Context) error {
		return rl.layer.Upsert(ctx, table, entry)
	})

	duration := time.Since(start)
	rl.metrics.RecordUpsert(rl.layer.Name(), table.String(), err == nil, duration)

	if err != nil {
		rl.logFailure("upsert", table, err, duration, zap.String("key", entry.Key))
		return err
	}

	return nil
}

// DeleteExpired removes expired rows under the bulk timeout.
func (rl *ResilientLayer) DeleteExpired(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
	return rl.bulkDelete(ctx, "delete_expired", table, func(ctx context.Context) (int64, error) {
		return rl.layer.DeleteExpired(ctx, table, now)
	})
}

// DeleteCreatedSince removes recently created rows under the bulk timeout.
func (rl *ResilientLayer) DeleteCreatedSince(ctx context.Context, table cache.Table, since time.Time) (int64, error) {
	return rl.bulkDelete(ctx, "delete_created_since", table, func(ctx context.Context) (int64, error) {
		return rl.layer.DeleteCreatedSince(ctx, table, since)
	})
}

func (rl *ResilientLayer) bulkDelete(ctx context.Context, op string, table cache.Table, fn func(context.Context) (int64, error)) (int64, error) {
	start := time.Now()

	var removed int64
	err := rl.breaker.ExecuteWithTimeout(ctx, rl.bulkTimeout, func(ctx context.Context) error {
		var err error
		removed, err = fn(ctx)
		return err
	})

	duration := time.Since(start)
	rl.metrics.RecordDelete(rl.layer.Name(), table.String(), removed, err == nil, duration)

	if err != nil {
		rl.logFailure(op, table, err, duration)
		return removed, err
	}

	return removed, nil
}

func (rl *ResilientLayer) logFailure(op string, table cache.Table, err error, duration time.Duration, fields ...zap.Field) {
	fields = append(fields,
		zap.String("operation", op),
		zap.String("table", table.String()),
		zap.String("error_type", cache.ClassifyError(err)),
		zap.Duration("duration", duration),
		zap.Error(err),
	)

	switch {
	case cache.IsCircuitOpen(err):
		rl.logger.Warn("circuit breaker open - request rejected", fields...)
	case cache.IsTimeout(err):
		rl.logger.Warn("operation timeout", fields...)
	default:
		rl.logger.Error("operation failed", fields...)
	}
}

// State returns the layer's circuit breaker state.
func (rl *ResilientLayer) State() metrics.CircuitState {
	return rl.breaker.State()
}

// Unwrap returns the protected layer.
func (rl *ResilientLayer) Unwrap() cache.CacheLayer {
	return rl.layer
}

// Close closes the underlying cache layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}
