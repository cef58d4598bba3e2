package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ebank-ledger/pkg/logging"
	"ebank-ledger/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// guard runs calls through a circuit breaker with a per-call timeout.
type guard struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger

	// accepted reports errors that are outcomes rather than failures.
	accepted func(error) bool
}

// newGuard builds a guard. isSuccessful decides which errors count against
// the breaker; errors it accepts are still returned to the caller.
func newGuard(name string, config ResilientConfig, collector metrics.Collector, logger *logging.Logger, isSuccessful func(error) bool) *guard {
	g := &guard{
		name:     name,
		timeout:  config.Timeout,
		logger:   logger,
		accepted: isSuccessful,
	}

	cbConfig := config.CircuitBreakerConfig
	settings := config.settings(name)
	settings.IsSuccessful = isSuccessful
	settings.OnStateChange = func(name string, from gobreaker.State, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		collector.RecordCircuitState(name, circuitState(to))
	}
	g.cb = gobreaker.NewCircuitBreaker(settings)

	logger.Info("guard initialized",
		zap.String("breaker", name),
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", cbConfig.MaxRequests),
		zap.Duration("circuit_interval", cbConfig.Interval),
		zap.Duration("circuit_timeout", cbConfig.Timeout),
	)

	return g
}

// do runs fn with the guard's timeout applied to ctx and maps breaker and
// deadline failures to ErrCircuitOpen and ErrTimeout.
func (g *guard) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.logger.Warn("circuit breaker open - request rejected",
			zap.String("operation", operation),
		)
		return fmt.Errorf("%s %s: %w", g.name, operation, ErrCircuitOpen)
	case g.accepted(err):
		// A rejection that lands after the deadline is still the answer.
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		g.logger.Warn("operation timeout",
			zap.String("operation", operation),
			zap.Duration("timeout", g.timeout),
			zap.Duration("elapsed", time.Since(start)),
		)
		return fmt.Errorf("%s %s: %w", g.name, operation, ErrTimeout)
	default:
		return err
	}
}

// state returns the current breaker state.
func (g *guard) state() metrics.CircuitState {
	return circuitState(g.cb.State())
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}
