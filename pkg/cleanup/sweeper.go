// Package cleanup removes stale rows from the cache tables: an expiry sweep
// that runs detached or on a schedule, and a synchronous force clear of
// recently written rows.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/logging"
	"places-cache/pkg/metrics"

	"go.uber.org/zap"
)

// Job names used in logs and metrics.
const (
	JobSweep      = "sweep"
	JobForceClear = "force_clear"
)

// ErrNoStore is returned when the sweeper has no cache store to work on.
var ErrNoStore = errors.New("cleanup: cache store not configured")

// TableResult is the outcome of one job on one table.
type TableResult struct {
	Success bool   `json:"success"`
	Removed int64  `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// Ack acknowledges a triggered sweep.
type Ack struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ForceClearResult reports a force clear.
type ForceClearResult struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	ClearedTime time.Time              `json:"cleared_time"`
	Tables      map[string]TableResult `json:"tables"`
}

// Sweeper runs the cleanup jobs against a cache store. Tables are processed
// independently; one table's failure never stops the other.
type Sweeper struct {
	store   cache.CacheLayer
	tables  []cache.Table
	config  Config
	metrics metrics.MetricsCollector
	logger  *logging.Logger
	now     func() time.Time

	// detached sweeps in flight
	wg sync.WaitGroup
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(s *Sweeper) { s.metrics = mc }
}

// WithTables overrides the tables visited (default cache.Tables).
func WithTables(tables ...cache.Table) Option {
	return func(s *Sweeper) { s.tables = tables }
}

// NewSweeper creates a sweeper over store.
func NewSweeper(store cache.CacheLayer, config Config, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.ForceClearWindow <= 0 {
		config.ForceClearWindow = DefaultConfig().ForceClearWindow
	}

	s := &Sweeper{
		store:   store,
		tables:  cache.Tables,
		config:  config,
		metrics: metrics.NoOpCollector{},
		logger:  logging.Global().Named("cleanup"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Sweep deletes every row whose expiry has passed, in every table.
func (s *Sweeper) Sweep(ctx context.Context) map[string]TableResult {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	now := s.now()
	return s.each(ctx, JobSweep, func(ctx context.Context, table cache.Table) (int64, error) {
		return s.store.DeleteExpired(ctx, table, now)
	})
}

// Trigger starts a sweep detached from the caller and returns at once.
// The sweep runs under its own timeout; failures are logged, not retried.
func (s *Sweeper) Trigger() Ack {
	started := s.now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("detached sweep panicked", zap.Any("panic", r))
			}
		}()
		s.Sweep(context.Background())
	}()

	return Ack{
		Message:   "Cache cleanup initiated",
		Timestamp: started,
	}
}

// ForceClear synchronously deletes every row created within the force-clear
// window, live or not.
func (s *Sweeper) ForceClear(ctx context.Context) (ForceClearResult, error) {
	if err := ctx.Err(); err != nil {
		return ForceClearResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	cutoff := s.now().Add(-s.config.ForceClearWindow)
	tables := s.each(ctx, JobForceClear, func(ctx context.Context, table cache.Table) (int64, error) {
		return s.store.DeleteCreatedSince(ctx, table, cutoff)
	})

	result := ForceClearResult{
		Success:     true,
		ClearedTime: cutoff,
		Tables:      tables,
	}
	for _, tr := range tables {
		if !tr.Success {
			result.Success = false
		}
	}

	if result.Success {
		result.Message = fmt.Sprintf("Cleared cache entries created since %s", cutoff.UTC().Format(time.RFC3339))
	} else {
		result.Message = "Cache clear failed for one or more tables"
	}

	return result, nil
}

func (s *Sweeper) each(ctx context.Context, job string, del func(context.Context, cache.Table) (int64, error)) map[string]TableResult {
	start := time.Now()
	results := make(map[string]TableResult, len(s.tables))
	var total int64

	for _, table := range s.tables {
		removed, err := del(ctx, table)
		s.metrics.RecordCleanup(job, table.String(), removed, err == nil)

		tr := TableResult{Success: err == nil, Removed: removed}
		if err != nil {
			tr.Error = err.Error()
			s.logger.Error("cleanup failed",
				zap.String("job", job),
				zap.String("table", table.String()),
				zap.String("error_type", cache.ClassifyError(err)),
				zap.Error(err),
			)
		} else {
			s.logger.Info("cleanup removed rows",
				zap.String("job", job),
				zap.String("table", table.String()),
				zap.Int64("removed", removed),
			)
		}

		total += removed
		results[table.String()] = tr
	}

	s.logger.Info("cleanup finished",
		zap.String("job", job),
		zap.Int64("removed", total),
		zap.Duration("duration", time.Since(start)),
	)

	return results
}

// Wait blocks until detached sweeps finish or ctx is done.
func (s *Sweeper) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
