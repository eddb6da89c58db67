package resilience

import (
	"context"
	"errors"
	"time"

	"places-cache/pkg/cache"
)

// ResilientConfig configures resilience features for a cache layer or the places provider.
type ResilientConfig struct {
	// Timeout for single-key operations and provider calls
	Timeout time.Duration

	// BulkTimeout bounds table-wide deletes run by cleanup jobs (0 = use Timeout)
	BulkTimeout time.Duration

	// CircuitBreakerConfig configures the circuit breaker behavior
	CircuitBreakerConfig CircuitBreakerConfig

	// IsSuccessful decides whether an error counts against the breaker.
	// If nil, DefaultIsSuccessful is used.
	IsSuccessful func(err error) bool
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the CircuitBreaker is half-open. Default: 1
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for the CircuitBreaker
	// to clear the internal counts. If Interval is 0, it never clears. Default: 0
	Interval time.Duration

	// Timeout is the period of the open state after which the state becomes half-open.
	// Default: 60s
	Timeout time.Duration

	// ReadyToTrip is called with a copy of Counts whenever a request fails.
	// If ReadyToTrip returns true, the CircuitBreaker will be placed into the open state.
	// If nil, default threshold is used (5 consecutive failures).
	ReadyToTrip func(counts Counts) bool
}

// Counts holds the numbers of requests and their successes/failures.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultResilientConfig returns defaults for a cache layer.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:     5 * time.Second,
		BulkTimeout: 30 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts Counts) bool {
				// Require at least 20 requests before considering error rate
				if counts.Requests < 20 {
					return false
				}
				// Trip if error rate >= 15%
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRate >= 0.15
			},
		},
	}
}

// DefaultProviderConfig returns defaults for calls to the places provider.
// Provider calls are slower than cache reads and trip on consecutive failures
// so an outage is detected quickly at low traffic.
func DefaultProviderConfig() ResilientConfig {
	return ResilientConfig{
		Timeout: 10 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c ResilientConfig) WithTimeout(timeout time.Duration) ResilientConfig {
	c.Timeout = timeout
	return c
}

// WithCircuitBreakerTimeout returns a copy of the config with the specified circuit breaker timeout.
func (c ResilientConfig) WithCircuitBreakerTimeout(timeout time.Duration) ResilientConfig {
	c.CircuitBreakerConfig.Timeout = timeout
	return c
}

// WithSuccessClassifier returns a copy of the config with a custom IsSuccessful.
func (c ResilientConfig) WithSuccessClassifier(fn func(err error) bool) ResilientConfig {
	c.IsSuccessful = fn
	return c
}

// DefaultIsSuccessful treats cache misses and caller cancellation as healthy
// outcomes; only real backend failures move the breaker towards open.
func DefaultIsSuccessful(err error) bool {
	return err == nil || cache.IsNotFound(err) || errors.Is(err, context.Canceled)
}
