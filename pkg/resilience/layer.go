package resilience

import (
	"context"
	"errors"
	"time"

	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"
	"ebank-ledger/pkg/metrics"

	"go.uber.org/zap"
)

// ResilientLayer wraps a cache.Layer with a circuit breaker and a timeout.
// Misses do not count as failures.
type ResilientLayer struct {
	layer   cache.Layer
	guard   *guard
	metrics metrics.Collector
	logger  *logging.Logger
}

// NewResilientLayer wraps layer without metrics.
func NewResilientLayer(layer cache.Layer, config ResilientConfig) *ResilientLayer {
	return NewResilientLayerWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewResilientLayerWithMetrics wraps layer and reports every call to collector.
func NewResilientLayerWithMetrics(layer cache.Layer, config ResilientConfig, collector metrics.Collector) *ResilientLayer {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger := logging.L().Named("resilience").Named(layer.Name())

	return &ResilientLayer{
		layer:   layer,
		guard:   newGuard(layer.Name(), config, collector, logger, layerSuccess),
		metrics: collector,
		logger:  logger,
	}
}

func layerSuccess(err error) bool {
	return err == nil || cache.IsNotFound(err) || errors.Is(err, context.Canceled)
}

// Name returns the name of the wrapped layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// Get reads through the guard.
func (rl *ResilientLayer) Get(ctx context.Context, key string) (ledger.AccountView, error) {
	start := time.Now()

	var view ledger.AccountView
	err := rl.guard.do(ctx, "get", func(ctx context.Context) error {
		var err error
		view, err = rl.layer.Get(ctx, key)
		return err
	})

	rl.metrics.RecordGet(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		rl.logFailure("get", key, err)
		return ledger.AccountView{}, err
	}
	return view, nil
}

// Set writes through the guard.
func (rl *ResilientLayer) Set(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
	start := time.Now()

	err := rl.guard.do(ctx, "set", func(ctx context.Context) error {
		return rl.layer.Set(ctx, key, view, ttl)
	})

	rl.metrics.RecordSet(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		rl.logFailure("set", key, err)
	}
	return err
}

// Delete deletes through the guard.
func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := rl.guard.do(ctx, "delete", func(ctx context.Context) error {
		return rl.layer.Delete(ctx, key)
	})

	rl.metrics.RecordDelete(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		rl.logFailure("delete", key, err)
	}
	return err
}

// State returns the current breaker state.
func (rl *ResilientLayer) State() metrics.CircuitState {
	return rl.guard.state()
}

// Close closes the wrapped layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}

func (rl *ResilientLayer) logFailure(operation, key string, err error) {
	if cache.IsNotFound(err) || IsUnavailable(err) {
		// Misses are normal; breaker and timeout rejections were logged by the guard.
		return
	}
	rl.logger.Error(operation+" operation failed",
		zap.String("operation", operation),
		zap.String("key", key),
		zap.String("class", cache.ClassifyError(err)),
		zap.Error(err),
	)
}
