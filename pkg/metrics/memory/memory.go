package memory

import (
	"sync"
	"time"

	"ebank-ledger/pkg/metrics"
)

// Collector implements metrics.Collector in memory. It is meant for tests and
// for the JSON metrics endpoint of a single process.
type Collector struct {
	mu sync.RWMutex

	operations map[string]*OperationMetrics
	layers     map[string]*LayerMetrics
	circuits   map[string]metrics.CircuitState

	chainHits        int64
	chainMisses      int64
	chainHitsByLayer map[int]int64
}

// OperationMetrics holds the counters of one ledger operation.
type OperationMetrics struct {
	Total     int64
	ByOutcome map[string]int64
	Latencies []time.Duration
}

// LayerMetrics holds the counters of one cache layer.
type LayerMetrics struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
	Errors  int64

	QueueDepth    int
	DroppedWrites int64
	AsyncWrites   int64
	AsyncErrors   int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		operations:       make(map[string]*OperationMetrics),
		layers:           make(map[string]*LayerMetrics),
		circuits:         make(map[string]metrics.CircuitState),
		chainHitsByLayer: make(map[int]int64),
	}
}

// layer must be called with mu held.
func (c *Collector) layer(name string) *LayerMetrics {
	lm, ok := c.layers[name]
	if !ok {
		lm = &LayerMetrics{}
		c.layers[name] = lm
	}
	return lm
}

// RecordOperation records one ledger operation.
func (c *Collector) RecordOperation(op string, outcome string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	om, ok := c.operations[op]
	if !ok {
		om = &OperationMetrics{ByOutcome: make(map[string]int64)}
		c.operations[op] = om
	}
	om.Total++
	om.ByOutcome[outcome]++
	om.Latencies = append(om.Latencies, duration)
}

// RecordGet records a cache get.
func (c *Collector) RecordGet(layer string, hit bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lm := c.layer(layer)
	if hit {
		lm.Hits++
	} else {
		lm.Misses++
	}
}

// RecordSet records a cache set.
func (c *Collector) RecordSet(layer string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lm := c.layer(layer)
	lm.Sets++
	if !success {
		lm.Errors++
	}
}

// RecordDelete records a cache delete.
func (c *Collector) RecordDelete(layer string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lm := c.layer(layer)
	lm.Deletes++
	if !success {
		lm.Errors++
	}
}

// RecordCircuitState records the latest state of a breaker.
func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.circuits[name] = state
}

// RecordQueueDepth records the warm-up queue depth of a layer.
func (c *Collector) RecordQueueDepth(layer string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.layer(layer).QueueDepth = depth
}

// RecordWriteDropped records a dropped warm-up write.
func (c *Collector) RecordWriteDropped(layer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.layer(layer).DroppedWrites++
}

// RecordAsyncWrite records a processed warm-up write.
func (c *Collector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lm := c.layer(layer)
	lm.AsyncWrites++
	if !success {
		lm.AsyncErrors++
	}
}

// RecordChainGet records a chain lookup.
func (c *Collector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hit {
		c.chainHits++
		c.chainHitsByLayer[layerIndex]++
	} else {
		c.chainMisses++
	}
}

// Snapshot is a point-in-time copy of everything recorded.
type Snapshot struct {
	Operations       map[string]OperationSnapshot `json:"operations"`
	Layers           map[string]LayerMetrics      `json:"layers"`
	Circuits         map[string]string            `json:"circuits"`
	ChainHits        int64                        `json:"chain_hits"`
	ChainMisses      int64                        `json:"chain_misses"`
	ChainHitsByLayer map[int]int64                `json:"chain_hits_by_layer"`
}

// OperationSnapshot is the exported form of OperationMetrics.
type OperationSnapshot struct {
	Total     int64            `json:"total"`
	ByOutcome map[string]int64 `json:"by_outcome"`
}

// Snapshot returns a copy of the current metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Operations:       make(map[string]OperationSnapshot, len(c.operations)),
		Layers:           make(map[string]LayerMetrics, len(c.layers)),
		Circuits:         make(map[string]string, len(c.circuits)),
		ChainHits:        c.chainHits,
		ChainMisses:      c.chainMisses,
		ChainHitsByLayer: make(map[int]int64, len(c.chainHitsByLayer)),
	}
	for op, om := range c.operations {
		outcomes := make(map[string]int64, len(om.ByOutcome))
		for k, v := range om.ByOutcome {
			outcomes[k] = v
		}
		s.Operations[op] = OperationSnapshot{Total: om.Total, ByOutcome: outcomes}
	}
	for name, lm := range c.layers {
		s.Layers[name] = *lm
	}
	for name, state := range c.circuits {
		s.Circuits[name] = state.String()
	}
	for idx, hits := range c.chainHitsByLayer {
		s.ChainHitsByLayer[idx] = hits
	}
	return s
}

// Outcomes returns how often op ended with each outcome.
func (c *Collector) Outcomes(op string) map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int64)
	if om, ok := c.operations[op]; ok {
		for k, v := range om.ByOutcome {
			out[k] = v
		}
	}
	return out
}

// Layer returns a copy of the metrics of one cache layer, or nil.
func (c *Collector) Layer(name string) *LayerMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if lm, ok := c.layers[name]; ok {
		cp := *lm
		return &cp
	}
	return nil
}

// Circuit returns the last recorded state of a breaker.
func (c *Collector) Circuit(name string) (metrics.CircuitState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.circuits[name]
	return state, ok
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.layers = make(map[string]*LayerMetrics)
	c.circuits = make(map[string]metrics.CircuitState)
	c.chainHits = 0
	c.chainMisses = 0
	c.chainHitsByLayer = make(map[int]int64)
}
