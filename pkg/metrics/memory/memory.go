package memory

import (
	"sync"
	"time"

	"places-cache/pkg/metrics"
)

// MemoryCollector implements MetricsCollector for in-memory testing.
type MemoryCollector struct {
	mu sync.RWMutex

	// Per-layer metrics
	layerMetrics map[string]*LayerMetrics

	// Chain-level metrics
	chainHits        int64
	chainMisses      int64
	chainHitsByLayer map[int]int64

	// Provider calls keyed by operation, then status
	providerCalls map[string]map[string]int64

	// Cleanup rows removed keyed by job, then table
	cleanupRemoved map[string]map[string]int64
	cleanupErrors  int64

	circuitStates map[string]metrics.CircuitState
}

// LayerMetrics holds metrics for a single cache layer.
type LayerMetrics struct {
	// Operation counts
	Hits    int64
	Misses  int64
	Upserts int64
	Deletes int64
	Removed int64
	Errors  int64

	// Hits and misses per table
	HitsByTable   map[string]int64
	MissesByTable map[string]int64

	// Async writer
	QueueDepth    int
	DroppedWrites int64
	AsyncWrites   int64
	AsyncErrors   int64

	// Latencies (simple stats)
	GetLatencies    []time.Duration
	UpsertLatencies []time.Duration
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.reset()
	return mc
}

// layerLocked returns the LayerMetrics for the given layer, creating it if needed.
// Callers must hold mu.
func (mc *MemoryCollector) layerLocked(layer string) *LayerMetrics {
	lm, exists := mc.layerMetrics[layer]
	if !exists {
		lm = &LayerMetrics{
			HitsByTable:   make(map[string]int64),
			MissesByTable: make(map[string]int64),
		}
		mc.layerMetrics[layer] = lm
	}
	return lm
}

// RecordGet records a cache get operation.
func (mc *MemoryCollector) RecordGet(layer, table string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layerLocked(layer)
	if hit {
		lm.Hits++
		lm.HitsByTable[table]++
	} else {
		lm.Misses++
		lm.MissesByTable[table]++
	}
	lm.GetLatencies = append(lm.GetLatencies, duration)
}

// RecordUpsert records a cache upsert operation.
func (mc *MemoryCollector) RecordUpsert(layer, table string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layerLocked(layer)
	lm.Upserts++
	if !success {
		lm.Errors++
	}
	lm.UpsertLatencies = append(lm.UpsertLatencies, duration)
}

// RecordDelete records a bulk delete operation.
func (mc *MemoryCollector) RecordDelete(layer, table string, removed int64, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layerLocked(layer)
	lm.Deletes++
	lm.Removed += removed
	if !success {
		lm.Errors++
	}
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.circuitStates[name] = state
}

// RecordQueueDepth records the current async writer queue depth.
func (mc *MemoryCollector) RecordQueueDepth(layer string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layerLocked(layer).QueueDepth = depth
}

// RecordWriteDropped records a dropped async write.
func (mc *MemoryCollector) RecordWriteDropped(layer string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layerLocked(layer).DroppedWrites++
}

// RecordAsyncWrite records an async write operation.
func (mc *MemoryCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layerLocked(layer)
	lm.AsyncWrites++
	if !success {
		lm.AsyncErrors++
	}
}

// RecordChainGet records a chain-level get operation.
func (mc *MemoryCollector) RecordChainGet(table string, hit bool, layerIndex int, totalDuration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if hit {
		mc.chainHits++
		mc.chainHitsByLayer[layerIndex]++
	} else {
		mc.chainMisses++
	}
}

// RecordProviderCall records a call to the places provider.
func (mc *MemoryCollector) RecordProviderCall(operation, status string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.providerCalls[operation] == nil {
		mc.providerCalls[operation] = make(map[string]int64)
	}
	mc.providerCalls[operation][status]++
}

// RecordCleanup records one table pass of a cleanup job.
func (mc *MemoryCollector) RecordCleanup(job, table string, removed int64, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.cleanupRemoved[job] == nil {
		mc.cleanupRemoved[job] = make(map[string]int64)
	}
	mc.cleanupRemoved[job][table] += removed
	if !success {
		mc.cleanupErrors++
	}
}

// Snapshot is a copy of the collected metrics.
type Snapshot struct {
	LayerMetrics     map[string]LayerMetrics
	ChainHits        int64
	ChainMisses      int64
	ChainHitsByLayer map[int]int64
	ProviderCalls    map[string]map[string]int64
	CleanupRemoved   map[string]map[string]int64
	CleanupErrors    int64
	CircuitStates    map[string]metrics.CircuitState
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := Snapshot{
		LayerMetrics:     make(map[string]LayerMetrics, len(mc.layerMetrics)),
		ChainHits:        mc.chainHits,
		ChainMisses:      mc.chainMisses,
		ChainHitsByLayer: make(map[int]int64, len(mc.chainHitsByLayer)),
		ProviderCalls:    copyNested(mc.providerCalls),
		CleanupRemoved:   copyNested(mc.cleanupRemoved),
		CleanupErrors:    mc.cleanupErrors,
		CircuitStates:    make(map[string]metrics.CircuitState, len(mc.circuitStates)),
	}

	for layer, lm := range mc.layerMetrics {
		snapshot.LayerMetrics[layer] = lm.clone()
	}
	for idx, hits := range mc.chainHitsByLayer {
		snapshot.ChainHitsByLayer[idx] = hits
	}
	for name, state := range mc.circuitStates {
		snapshot.CircuitStates[name] = state
	}

	return snapshot
}

// ProviderCalls returns the number of provider calls for an operation across all statuses.
func (mc *MemoryCollector) ProviderCalls(operation string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var total int64
	for _, n := range mc.providerCalls[operation] {
		total += n
	}
	return total
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.reset()
}

func (mc *MemoryCollector) reset() {
	mc.layerMetrics = make(map[string]*LayerMetrics)
	mc.chainHits = 0
	mc.chainMisses = 0
	mc.chainHitsByLayer = make(map[int]int64)
	mc.providerCalls = make(map[string]map[string]int64)
	mc.cleanupRemoved = make(map[string]map[string]int64)
	mc.cleanupErrors = 0
	mc.circuitStates = make(map[string]metrics.CircuitState)
}

// GetLayerMetrics returns a copy of the metrics for a specific layer.
func (mc *MemoryCollector) GetLayerMetrics(layer string) *LayerMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if lm, exists := mc.layerMetrics[layer]; exists {
		c := lm.clone()
		return &c
	}
	return nil
}

func (lm *LayerMetrics) clone() LayerMetrics {
	c := *lm
	c.HitsByTable = make(map[string]int64, len(lm.HitsByTable))
	for k, v := range lm.HitsByTable {
		c.HitsByTable[k] = v
	}
	c.MissesByTable = make(map[string]int64, len(lm.MissesByTable))
	for k, v := range lm.MissesByTable {
		c.MissesByTable[k] = v
	}
	c.GetLatencies = append([]time.Duration(nil), lm.GetLatencies...)
	c.UpsertLatencies = append([]time.Duration(nil), lm.UpsertLatencies...)
	return c
}

func copyNested(src map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(src))
	for k, inner := range src {
		m := make(map[string]int64, len(inner))
		for ik, v := range inner {
			m[ik] = v
		}
		out[k] = m
	}
	return out
}
