package prometheus

import (
	"strconv"
	"time"

	"ebank-ledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector on top of Prometheus vectors.
// It is itself a prometheus.Collector, so it can be passed to MustRegister.
type Collector struct {
	namespace string

	// Ledger
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	// Cache layers
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	cacheSets     *prometheus.CounterVec
	cacheDeletes  *prometheus.CounterVec
	cacheErrors   *prometheus.CounterVec
	getLatency    *prometheus.HistogramVec
	setLatency    *prometheus.HistogramVec
	deleteLatency *prometheus.HistogramVec

	// Circuit breakers
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Async warm-up writer
	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec
	asyncLatency  *prometheus.HistogramVec

	// Chain
	chainHits    *prometheus.CounterVec
	chainMisses  prometheus.Counter
	chainLatency *prometheus.HistogramVec
}

// latencyBuckets spans 0.1ms to about 3s.
var latencyBuckets = prometheus.ExponentialBuckets(0.0001, 2, 15)

// NewCollector creates a collector whose metric names are prefixed with namespace.
func NewCollector(namespace string) *Collector {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   latencyBuckets,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Collector{
		namespace: namespace,

		operations:       counter("operations_total", "Ledger operations by outcome", "operation", "outcome"),
		operationLatency: histogram("operation_duration_seconds", "Ledger operation latency", "operation"),

		cacheHits:     counter("cache_hits_total", "Account view cache hits per layer", "layer"),
		cacheMisses:   counter("cache_misses_total", "Account view cache misses per layer", "layer"),
		cacheSets:     counter("cache_sets_total", "Account view cache sets per layer", "layer"),
		cacheDeletes:  counter("cache_deletes_total", "Account view cache deletes per layer", "layer"),
		cacheErrors:   counter("cache_errors_total", "Account view cache errors per layer and operation", "layer", "operation"),
		getLatency:    histogram("cache_get_duration_seconds", "Cache get latency", "layer"),
		setLatency:    histogram("cache_set_duration_seconds", "Cache set latency", "layer"),
		deleteLatency: histogram("cache_delete_duration_seconds", "Cache delete latency", "layer"),

		circuitOpens: counter("circuit_opens_total", "Circuit breaker transitions to open", "name"),
		circuitState: gauge("circuit_state", "Circuit breaker state (0=closed, 1=open, 2=half-open)", "name"),

		queueDepth:    gauge("warmup_queue_depth", "Pending cache warm-up writes per layer", "layer"),
		droppedWrites: counter("warmup_dropped_total", "Cache warm-up writes dropped under backpressure", "layer"),
		asyncWrites:   counter("warmup_writes_total", "Processed cache warm-up writes", "layer", "status"),
		asyncLatency:  histogram("warmup_write_duration_seconds", "Cache warm-up write latency", "layer"),

		chainHits: counter("chain_hits_total", "Chain lookups answered, by layer index", "layer_index"),
		chainMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_misses_total",
			Help:      "Chain lookups no layer could answer",
		}),
		chainLatency: histogram("chain_get_duration_seconds", "Chain lookup latency", "hit"),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.operations, c.operationLatency,
		c.cacheHits, c.cacheMisses, c.cacheSets, c.cacheDeletes, c.cacheErrors,
		c.getLatency, c.setLatency, c.deleteLatency,
		c.circuitOpens, c.circuitState,
		c.queueDepth, c.droppedWrites, c.asyncWrites, c.asyncLatency,
		c.chainHits, c.chainMisses, c.chainLatency,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

// Register registers the collector with the given registerer.
func (c *Collector) Register(registerer prometheus.Registerer) error {
	return registerer.Register(c)
}

// RecordOperation records a ledger operation.
func (c *Collector) RecordOperation(op string, outcome string, duration time.Duration) {
	c.operations.WithLabelValues(op, outcome).Inc()
	c.operationLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordGet records a cache get.
func (c *Collector) RecordGet(layer string, hit bool, duration time.Duration) {
	if hit {
		c.cacheHits.WithLabelValues(layer).Inc()
	} else {
		c.cacheMisses.WithLabelValues(layer).Inc()
	}
	c.getLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordSet records a cache set.
func (c *Collector) RecordSet(layer string, success bool, duration time.Duration) {
	c.cacheSets.WithLabelValues(layer).Inc()
	if !success {
		c.cacheErrors.WithLabelValues(layer, "set").Inc()
	}
	c.setLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordDelete records a cache delete.
func (c *Collector) RecordDelete(layer string, success bool, duration time.Duration) {
	c.cacheDeletes.WithLabelValues(layer).Inc()
	if !success {
		c.cacheErrors.WithLabelValues(layer, "delete").Inc()
	}
	c.deleteLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordCircuitState records the current state of a breaker.
func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordQueueDepth records the warm-up queue depth.
func (c *Collector) RecordQueueDepth(layer string, depth int) {
	c.queueDepth.WithLabelValues(layer).Set(float64(depth))
}

// RecordWriteDropped records a dropped warm-up write.
func (c *Collector) RecordWriteDropped(layer string) {
	c.droppedWrites.WithLabelValues(layer).Inc()
}

// RecordAsyncWrite records a processed warm-up write.
func (c *Collector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.asyncWrites.WithLabelValues(layer, status).Inc()
	c.asyncLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordChainGet records a chain lookup.
func (c *Collector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	hitLabel := "false"
	if hit {
		c.chainHits.WithLabelValues(strconv.Itoa(layerIndex)).Inc()
		hitLabel = "true"
	} else {
		c.chainMisses.Inc()
	}
	c.chainLatency.WithLabelValues(hitLabel).Observe(totalDuration.Seconds())
}
