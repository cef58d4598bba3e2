// Package writer warms cache layers in the background.
//
// When the chain answers a lookup from a slow layer it hands the view to the
// AsyncWriter of every faster layer instead of writing it inline, so a slow
// or failing L1/L2 never delays the read that found the view.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"
	"ebank-ledger/pkg/metrics"

	"go.uber.org/zap"
)

// AsyncWriter applies Set calls to one layer from a bounded queue served by a
// fixed worker pool.
type AsyncWriter struct {
	layer     cache.Layer
	layerName string
	queue     chan writeOp
	config    AsyncWriterConfig
	metrics   metrics.Collector
	logger    *logging.Logger

	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// pending counts queued plus in-flight writes.
	pending atomic.Int64

	droppedWrites atomic.Int64
	totalWrites   atomic.Int64
	failedWrites  atomic.Int64

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
}

type writeOp struct {
	key  string
	view ledger.AccountView
	ttl  time.Duration
}

// AsyncWriterConfig configures the async writer behavior.
type AsyncWriterConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is how long Write waits for queue space before dropping
	// the write (default: 10ms)
	MaxWaitTime time.Duration

	// WriteTimeout bounds each Set on the layer (default: 1s)
	WriteTimeout time.Duration

	// Metrics receives queue depth, drops and write outcomes. Default: no-op
	Metrics metrics.Collector

	// Logger receives failed writes. Default: the global logger
	Logger *logging.Logger
}

// NewAsyncWriter starts a writer for layer. It must be closed with Close.
func NewAsyncWriter(layer cache.Layer, config AsyncWriterConfig) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime <= 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = time.Second
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncWriter{
		layer:         layer,
		layerName:     layer.Name(),
		queue:         make(chan writeOp, config.QueueSize),
		config:        config,
		metrics:       config.Metrics,
		logger:        config.Logger.Named("writer").With(zap.String("layer", layer.Name())),
		ctx:           ctx,
		cancel:        cancel,
		metricsTicker: time.NewTicker(5 * time.Second),
		metricsStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	go w.reportMetrics()

	return w
}

// Write enqueues a Set of view under key. If the queue stays full for
// MaxWaitTime the write is dropped and ErrQueueFull is returned.
func (w *AsyncWriter) Write(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
	if w.ctx.Err() != nil {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	op := writeOp{key: key, view: view, ttl: ttl}

	w.pending.Add(1)
	select {
	case w.queue <- op:
		w.totalWrites.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case w.queue <- op:
		w.totalWrites.Add(1)
		return nil
	case <-timer.C:
		w.pending.Add(-1)
		w.droppedWrites.Add(1)
		w.metrics.RecordWriteDropped(w.layerName)
		return ErrQueueFull
	case <-ctx.Done():
		w.pending.Add(-1)
		return ctx.Err()
	case <-w.ctx.Done():
		w.pending.Add(-1)
		return ErrWriterClosed
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) apply(op writeOp) {
	defer w.pending.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := w.layer.Set(ctx, op.key, op.view, op.ttl)
	w.metrics.RecordAsyncWrite(w.layerName, err == nil, time.Since(start))

	if err != nil {
		w.failedWrites.Add(1)
		w.logger.Warn("cache warm-up write failed",
			zap.String("key", op.key),
			zap.Error(err),
		)
	}
}

// Flush waits until every accepted write has been applied, or returns
// ErrFlushTimeout.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for w.pending.Load() > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Close stops accepting writes, applies the queued ones and waits for the
// workers. Calling Close again is a no-op.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.metricsStop)
		w.metricsTicker.Stop()
		w.cancel()
		w.wg.Wait()
	})
	return nil
}

func (w *AsyncWriter) reportMetrics() {
	for {
		select {
		case <-w.metricsTicker.C:
			w.metrics.RecordQueueDepth(w.layerName, len(w.queue))
		case <-w.metricsStop:
			return
		}
	}
}

// Stats returns current statistics about the async writer.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    len(w.queue),
		DroppedWrites: w.droppedWrites.Load(),
		TotalWrites:   w.totalWrites.Load(),
		FailedWrites:  w.failedWrites.Load(),
	}
}
