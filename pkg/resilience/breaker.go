package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/logging"
	"places-cache/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker runs calls under a gobreaker circuit breaker with a per-call timeout.
// It is shared by ResilientLayer and the places provider client.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger
}

// NewBreaker creates a named breaker. State changes are logged and reported to mc.
func NewBreaker(name string, config ResilientConfig, mc metrics.MetricsCollector) *Breaker {
	if mc == nil {
		mc = metrics.NoOpCollector{}
	}
	logger := logging.Global().Named("resilience").Named(name)

	isSuccessful := config.IsSuccessful
	if isSuccessful == nil {
		isSuccessful = DefaultIsSuccessful
	}

	settings := gobreaker.Settings{
		Name:         name,
		MaxRequests:  config.CircuitBreakerConfig.MaxRequests,
		Interval:     config.CircuitBreakerConfig.Interval,
		Timeout:      config.CircuitBreakerConfig.Timeout,
		IsSuccessful: isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreakerConfig.ReadyToTrip != nil {
				return config.CircuitBreakerConfig.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			// Default: trip after 5 consecutive failures
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			mc.RecordCircuitState(name, circuitState(to))
		},
	}

	logger.Debug("circuit breaker initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_interval", config.CircuitBreakerConfig.Interval),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
	)

	return &Breaker{
		name:    name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: config.Timeout,
		logger:  logger,
	}
}

// Execute runs fn with the breaker's timeout applied to ctx.
// Rejections while open (or over the half-open quota) return cache.ErrCircuitOpen;
// calls that overrun the timeout return an error wrapping cache.ErrTimeout.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.ExecuteWithTimeout(ctx, b.timeout, fn)
}

// ExecuteWithTimeout is Execute with an explicit timeout (0 = none).
func (b *Breaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return cache.ErrCircuitOpen
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s: %w", cache.ErrTimeout, b.name, timeout, err)
	}

	return err
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current breaker state.
func (b *Breaker) State() metrics.CircuitState {
	return circuitState(b.cb.State())
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	default:
		return metrics.CircuitClosed
	}
}
