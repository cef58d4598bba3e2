package metrics

import (
	"time"
)

// Collector receives measurements from the ledger and from the account view
// cache. Implementations export them to a backend (Prometheus) or keep them
// in memory for tests.
type Collector interface {
	// Ledger operations. outcome is "ok" or the classification of the
	// rejection (e.g. "insufficient_funds").
	RecordOperation(op string, outcome string, duration time.Duration)

	// Cache layer operations
	RecordGet(layer string, hit bool, duration time.Duration)
	RecordSet(layer string, success bool, duration time.Duration)
	RecordDelete(layer string, success bool, duration time.Duration)

	// Circuit breaker guarding a cache layer or the store
	RecordCircuitState(name string, state CircuitState)

	// Async cache warm-up writer
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)

	// Chain-level lookups. layerIndex is the index of the layer that hit.
	RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is probing for recovery.
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

// NoOpCollector discards every measurement. It is the default wherever a
// Collector is optional.
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(op string, outcome string, duration time.Duration)    {}
func (NoOpCollector) RecordGet(layer string, hit bool, duration time.Duration)             {}
func (NoOpCollector) RecordSet(layer string, success bool, duration time.Duration)         {}
func (NoOpCollector) RecordDelete(layer string, success bool, duration time.Duration)      {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState)                   {}
func (NoOpCollector) RecordQueueDepth(layer string, depth int)                             {}
func (NoOpCollector) RecordWriteDropped(layer string)                                      {}
func (NoOpCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration)  {}
func (NoOpCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {}
