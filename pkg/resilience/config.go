package resilience

import (
	"time"

	"github.com/sony/gobreaker"
)

// ResilientConfig configures the guard in front of a cache layer or the
// ledger store: a per-call timeout and a circuit breaker.
type ResilientConfig struct {
	// Timeout bounds each guarded call. Zero disables it.
	Timeout time.Duration

	CircuitBreakerConfig CircuitBreakerConfig
}

// CircuitBreakerConfig maps onto gobreaker.Settings.
type CircuitBreakerConfig struct {
	// MaxRequests may pass while the breaker is half-open.
	MaxRequests uint32

	// Interval clears the counts while closed. Zero never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ReadyToTrip opens the breaker. Nil means ConsecutiveFailures(5).
	ReadyToTrip TripPolicy
}

// Counts mirrors gobreaker.Counts so callers need not import gobreaker.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func countsFrom(c gobreaker.Counts) Counts {
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// TripPolicy decides from the current counts whether the breaker opens.
type TripPolicy func(counts Counts) bool

// ConsecutiveFailures trips after n failures in a row.
func ConsecutiveFailures(n uint32) TripPolicy {
	return func(counts Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// FailureRate trips once at least minRequests were seen in the interval and
// the share of failures among them reached rate.
func FailureRate(minRequests uint32, rate float64) TripPolicy {
	return func(counts Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= rate
	}
}

// DefaultResilientConfig returns the guard used for cache layers. A flaky
// layer is skipped for 30s once 15% of at least 20 lookups failed.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout: 5 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: FailureRate(20, 0.15),
		},
	}
}

// DefaultStoreConfig returns the guard used for the ledger store. Balance
// reads and writes are few and must not be shed on a failure rate, so it
// trips on consecutive failures only and probes again after ten seconds.
func DefaultStoreConfig() ResilientConfig {
	return ResilientConfig{
		Timeout: 5 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: ConsecutiveFailures(5),
		},
	}
}

func (c ResilientConfig) isZero() bool {
	cb := c.CircuitBreakerConfig
	return c.Timeout == 0 && cb.MaxRequests == 0 && cb.Interval == 0 && cb.Timeout == 0 && cb.ReadyToTrip == nil
}

func (c ResilientConfig) settings(name string) gobreaker.Settings {
	cb := c.CircuitBreakerConfig
	trip := cb.ReadyToTrip
	if trip == nil {
		trip = ConsecutiveFailures(5)
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cb.MaxRequests,
		Interval:    cb.Interval,
		Timeout:     cb.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return trip(countsFrom(counts))
		},
	}
}

// WithTimeout returns a copy of the config with the given call timeout.
func (c ResilientConfig) WithTimeout(timeout time.Duration) ResilientConfig {
	c.Timeout = timeout
	return c
}

// WithTripPolicy returns a copy of the config that opens on policy.
func (c ResilientConfig) WithTripPolicy(policy TripPolicy) ResilientConfig {
	c.CircuitBreakerConfig.ReadyToTrip = policy
	return c
}
