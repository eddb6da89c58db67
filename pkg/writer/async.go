package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/logging"
	"places-cache/pkg/metrics"

	"go.uber.org/zap"
)

// AsyncWriter provides non-blocking cache upserts using a worker pool and bounded queue.
// The chain uses it to warm faster layers after a hit in a slower one without
// holding up the read, and lookups use it for write-through after a provider call.
type AsyncWriter struct {
	layer      cache.CacheLayer
	queue      chan writeOp
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     AsyncWriterConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	layerName  string
	closeOnce  sync.Once

	// Statistics (accessed atomically)
	droppedWrites int64
	totalWrites   int64
	failedWrites  int64
	pending       int64

	metricsStop chan struct{}
}

// writeOp is a pending upsert. The entry carries its own CreatedAt/ExpiresAt,
// so a delayed write never extends the row's lifetime.
type writeOp struct {
	table cache.Table
	entry cache.CacheEntry
}

// AsyncWriterConfig configures the async writer behavior.
type AsyncWriterConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is the max time to wait if queue is full (default: 10ms)
	MaxWaitTime time.Duration

	// WriteTimeout bounds each upsert against the layer (default: 5s)
	WriteTimeout time.Duration

	// MetricsInterval is how often queue depth is reported (default: 5s)
	MetricsInterval time.Duration
}

// NewAsyncWriter creates a new async writer with bounded queue and worker pool.
// The writer starts processing immediately and must be closed with Close().
func NewAsyncWriter(layer cache.CacheLayer, config AsyncWriterConfig) *AsyncWriter {
	return NewAsyncWriterWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewAsyncWriterWithMetrics creates a new async writer with custom metrics collector.
func NewAsyncWriterWithMetrics(layer cache.CacheLayer, config AsyncWriterConfig, metricsCollector metrics.MetricsCollector) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = 5 * time.Second
	}
	if metricsCollector == nil {
		metricsCollector = metrics.NoOpCollector{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncWriter{
		layer:       layer,
		queue:       make(chan writeOp, config.QueueSize),
		ctx:         ctx,
		cancelFunc:  cancel,
		config:      config,
		metrics:     metricsCollector,
		logger:      logging.Global().Named("writer").Named(layer.Name()),
		layerName:   layer.Name(),
		metricsStop: make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	go w.reportMetrics()

	return w
}

// Write enqueues an upsert non-blockingly.
// If the queue is full, it waits up to MaxWaitTime before dropping the write.
// Returns ErrQueueFull if the write was dropped due to backpressure.
func (w *AsyncWriter) Write(ctx context.Context, table cache.Table, entry cache.CacheEntry) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	op := writeOp{table: table, entry: entry}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	atomic.AddInt64(&w.pending, 1)
	select {
	case w.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.pending, -1)
		atomic.AddInt64(&w.droppedWrites, 1)
		w.metrics.RecordWriteDropped(w.layerName)
		return ErrQueueFull
	case <-ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ctx.Err()
	case <-w.ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ErrWriterClosed
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.process(op)
		case <-w.ctx.Done():
			// Drain remaining items in queue before exiting
			for {
				select {
				case op := <-w.queue:
					w.process(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) process(op writeOp) {
	defer atomic.AddInt64(&w.pending, -1)

	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := w.layer.Upsert(ctx, op.table, op.entry)
	duration := time.Since(start)

	w.metrics.RecordAsyncWrite(w.layerName, err == nil, duration)

	if err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
		w.logger.Warn("async upsert failed",
			zap.String("table", op.table.String()),
			zap.String("key", op.entry.Key),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}
}

// Flush waits until every accepted write has been applied or the timeout passes.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if atomic.LoadInt64(&w.pending) == 0 {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}

		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops accepting new writes and waits for workers to drain the queue.
// It is safe to call more than once.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.metricsStop)
		w.cancelFunc()
		w.wg.Wait()
	})
	return nil
}

func (w *AsyncWriter) reportMetrics() {
	ticker := time.NewTicker(w.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.metrics.RecordQueueDepth(w.layerName, len(w.queue))
		case <-w.metricsStop:
			return
		}
	}
}

// Stats returns current statistics about the async writer.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    len(w.queue),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
	}
}
