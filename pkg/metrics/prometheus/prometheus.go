package prometheus

import (
	"strconv"
	"time"

	"places-cache/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Cache layers
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheUpserts *prometheus.CounterVec
	cacheRemoved *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Async writer
	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec

	// Histograms
	getLatency    *prometheus.HistogramVec
	upsertLatency *prometheus.HistogramVec
	deleteLatency *prometheus.HistogramVec
	asyncLatency  *prometheus.HistogramVec

	// Chain-level
	chainHits    *prometheus.CounterVec
	chainMisses  *prometheus.CounterVec
	chainLatency *prometheus.HistogramVec

	// Provider
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec

	// Cleanup
	cleanupRuns    *prometheus.CounterVec
	cleanupRemoved *prometheus.CounterVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	pc := &PrometheusCollector{
		namespace: namespace,
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits per layer and table",
			},
			[]string{"layer", "table"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses per layer and table",
			},
			[]string{"layer", "table"},
		),
		cacheUpserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_upserts_total",
				Help:      "Total number of cache upserts per layer and table",
			},
			[]string{"layer", "table"},
		),
		cacheRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_rows_removed_total",
				Help:      "Total number of rows removed by delete operations per layer and table",
			},
			[]string{"layer", "table"},
		),
		cacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Total number of cache errors per layer and operation",
			},
			[]string{"layer", "operation"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current async writer queue depth per layer",
			},
			[]string{"layer"},
		),
		droppedWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_writes_total",
				Help:      "Total number of dropped async writes per layer",
			},
			[]string{"layer"},
		),
		asyncWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "async_writes_total",
				Help:      "Total number of async writes per layer",
			},
			[]string{"layer", "status"},
		),
		getLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "get_duration_seconds",
				Help:      "Cache get operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
		upsertLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upsert_duration_seconds",
				Help:      "Cache upsert operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
		deleteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delete_duration_seconds",
				Help:      "Cache delete operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
		asyncLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "async_write_duration_seconds",
				Help:      "Async write operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
		chainHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_hits_total",
				Help:      "Total number of chain-level cache hits",
			},
			[]string{"table", "layer_index"},
		),
		chainMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_misses_total",
				Help:      "Total number of chain-level cache misses",
			},
			[]string{"table"},
		),
		chainLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chain_get_duration_seconds",
				Help:      "Chain get operation total latency",
				Buckets:   latencyBuckets,
			},
			[]string{"hit"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of places provider calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Places provider call latency",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"operation"},
		),
		cleanupRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_runs_total",
				Help:      "Total number of cleanup runs per job, table and status",
			},
			[]string{"job", "table", "status"},
		),
		cleanupRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_rows_removed_total",
				Help:      "Total number of rows removed by cleanup jobs",
			},
			[]string{"job", "table"},
		),
	}

	return pc
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.cacheHits,
		pc.cacheMisses,
		pc.cacheUpserts,
		pc.cacheRemoved,
		pc.cacheErrors,
		pc.circuitOpens,
		pc.circuitState,
		pc.queueDepth,
		pc.droppedWrites,
		pc.asyncWrites,
		pc.getLatency,
		pc.upsertLatency,
		pc.deleteLatency,
		pc.asyncLatency,
		pc.chainHits,
		pc.chainMisses,
		pc.chainLatency,
		pc.providerCalls,
		pc.providerLatency,
		pc.cleanupRuns,
		pc.cleanupRemoved,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordGet records a cache get operation.
func (pc *PrometheusCollector) RecordGet(layer, table string, hit bool, duration time.Duration) {
	if hit {
		pc.cacheHits.WithLabelValues(layer, table).Inc()
	} else {
		pc.cacheMisses.WithLabelValues(layer, table).Inc()
	}
	pc.getLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordUpsert records a cache upsert operation.
func (pc *PrometheusCollector) RecordUpsert(layer, table string, success bool, duration time.Duration) {
	pc.cacheUpserts.WithLabelValues(layer, table).Inc()
	if !success {
		pc.cacheErrors.WithLabelValues(layer, "upsert").Inc()
	}
	pc.upsertLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordDelete records a bulk delete operation.
func (pc *PrometheusCollector) RecordDelete(layer, table string, removed int64, success bool, duration time.Duration) {
	if removed > 0 {
		pc.cacheRemoved.WithLabelValues(layer, table).Add(float64(removed))
	}
	if !success {
		pc.cacheErrors.WithLabelValues(layer, "delete").Inc()
	}
	pc.deleteLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordQueueDepth records the current async writer queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(layer string, depth int) {
	pc.queueDepth.WithLabelValues(layer).Set(float64(depth))
}

// RecordWriteDropped records a dropped async write.
func (pc *PrometheusCollector) RecordWriteDropped(layer string) {
	pc.droppedWrites.WithLabelValues(layer).Inc()
}

// RecordAsyncWrite records an async write operation.
func (pc *PrometheusCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.asyncWrites.WithLabelValues(layer, status).Inc()
	pc.asyncLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordChainGet records a chain-level get operation.
func (pc *PrometheusCollector) RecordChainGet(table string, hit bool, layerIndex int, totalDuration time.Duration) {
	hitLabel := "false"
	if hit {
		pc.chainHits.WithLabelValues(table, strconv.Itoa(layerIndex)).Inc()
		hitLabel = "true"
	} else {
		pc.chainMisses.WithLabelValues(table).Inc()
	}
	pc.chainLatency.WithLabelValues(hitLabel).Observe(totalDuration.Seconds())
}

// RecordProviderCall records a call to the places provider.
func (pc *PrometheusCollector) RecordProviderCall(operation, status string, duration time.Duration) {
	pc.providerCalls.WithLabelValues(operation, status).Inc()
	pc.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCleanup records one table pass of a cleanup job.
func (pc *PrometheusCollector) RecordCleanup(job, table string, removed int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.cleanupRuns.WithLabelValues(job, table, status).Inc()
	if removed > 0 {
		pc.cleanupRemoved.WithLabelValues(job, table).Add(float64(removed))
	}
}
