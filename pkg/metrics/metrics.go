package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting places-cache metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory for tests).
type MetricsCollector interface {
	// Cache layer operations, labelled by layer name and cache table
	RecordGet(layer, table string, hit bool, duration time.Duration)
	RecordUpsert(layer, table string, success bool, duration time.Duration)
	RecordDelete(layer, table string, removed int64, success bool, duration time.Duration)

	// Circuit breaker (cache layers and the places provider)
	RecordCircuitState(name string, state CircuitState)

	// Async writer
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)

	// Chain-level
	RecordChainGet(table string, hit bool, layerIndex int, totalDuration time.Duration)

	// Places provider calls; status is the provider status or "NETWORK_ERROR"
	RecordProviderCall(operation, status string, duration time.Duration)

	// Cleanup jobs
	RecordCleanup(job, table string, removed int64, success bool)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the service has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is a no-op implementation of MetricsCollector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

// RecordGet does nothing.
func (NoOpCollector) RecordGet(layer, table string, hit bool, duration time.Duration) {}

// RecordUpsert does nothing.
func (NoOpCollector) RecordUpsert(layer, table string, success bool, duration time.Duration) {}

// RecordDelete does nothing.
func (NoOpCollector) RecordDelete(layer, table string, removed int64, success bool, duration time.Duration) {
}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

// RecordQueueDepth does nothing.
func (NoOpCollector) RecordQueueDepth(layer string, depth int) {}

// RecordWriteDropped does nothing.
func (NoOpCollector) RecordWriteDropped(layer string) {}

// RecordAsyncWrite does nothing.
func (NoOpCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {}

// RecordChainGet does nothing.
func (NoOpCollector) RecordChainGet(table string, hit bool, layerIndex int, totalDuration time.Duration) {
}

// RecordProviderCall does nothing.
func (NoOpCollector) RecordProviderCall(operation, status string, duration time.Duration) {}

// RecordCleanup does nothing.
func (NoOpCollector) RecordCleanup(job, table string, removed int64, success bool) {}

// Multi fans every event out to each collector in order.
type Multi []MetricsCollector

func (m Multi) RecordGet(layer, table string, hit bool, duration time.Duration) {
	for _, c := range m {
		c.RecordGet(layer, table, hit, duration)
	}
}

func (m Multi) RecordUpsert(layer, table string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordUpsert(layer, table, success, duration)
	}
}

func (m Multi) RecordDelete(layer, table string, removed int64, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordDelete(layer, table, removed, success, duration)
	}
}

func (m Multi) RecordCircuitState(name string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(name, state)
	}
}

func (m Multi) RecordQueueDepth(layer string, depth int) {
	for _, c := range m {
		c.RecordQueueDepth(layer, depth)
	}
}

func (m Multi) RecordWriteDropped(layer string) {
	for _, c := range m {
		c.RecordWriteDropped(layer)
	}
}

func (m Multi) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordAsyncWrite(layer, success, duration)
	}
}

func (m Multi) RecordChainGet(table string, hit bool, layerIndex int, totalDuration time.Duration) {
	for _, c := range m {
		c.RecordChainGet(table, hit, layerIndex, totalDuration)
	}
}

func (m Multi) RecordProviderCall(operation, status string, duration time.Duration) {
	for _, c := range m {
		c.RecordProviderCall(operation, status, duration)
	}
}

func (m Multi) RecordCleanup(job, table string, removed int64, success bool) {
	for _, c := range m {
		c.RecordCleanup(job, table, removed, success)
	}
}
