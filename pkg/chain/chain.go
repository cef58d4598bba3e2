// Package chain reads account views through an ordered list of cache layers.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"
	"ebank-ledger/pkg/metrics"
	"ebank-ledger/pkg/resilience"
	"ebank-ledger/pkg/writer"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the base lifetime of a cached view.
const DefaultTTL = 5 * time.Minute

// Chain manages multiple cache layers with automatic fallback and warm-up.
// Layers are ordered from fastest (L1) to slowest (LN).
type Chain struct {
	layers  []*resilience.ResilientLayer
	writers []*writer.AsyncWriter
	sf      singleflight.Group

	ttl      time.Duration
	strategy TTLStrategy
	metrics  metrics.Collector
	logger   *logging.Logger
}

// Config configures a chain. The zero value is usable.
type Config struct {
	// ResilientConfigs holds the guard of each layer by index. Missing
	// entries get DefaultResilientConfig with a 100ms timeout for L1 and 1s
	// for the layers below it.
	ResilientConfigs []resilience.ResilientConfig

	// TTL is the base lifetime passed to the TTL strategy. Default: DefaultTTL
	TTL time.Duration

	// TTLStrategy derives each layer's TTL from TTL. Default: uniform
	TTLStrategy TTLStrategy

	// Writer configures the warm-up writer of every layer. Metrics and
	// Logger default to the chain's own.
	Writer writer.AsyncWriterConfig

	// Metrics receives layer, writer and chain measurements. Default: no-op
	Metrics metrics.Collector

	// Logger defaults to the global logger.
	Logger *logging.Logger
}

// New creates a chain with the default configuration.
func New(layers ...cache.Layer) (*Chain, error) {
	return NewWithConfig(Config{}, layers...)
}

// NewWithConfig creates a chain of layers ordered from fastest to slowest.
// Every layer is wrapped with a circuit breaker and a timeout, and gets an
// async writer used to warm it after a hit further down.
func NewWithConfig(config Config, layers ...cache.Layer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}

	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.TTLStrategy == nil {
		config.TTLStrategy = &UniformTTLStrategy{}
	}
	if d, ok := config.TTLStrategy.(*DecayingTTLStrategy); ok && d.Layers == 0 {
		config.TTLStrategy = &DecayingTTLStrategy{DecayFactor: d.DecayFactor, Layers: len(layers)}
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}
	if config.Writer.Metrics == nil {
		config.Writer.Metrics = config.Metrics
	}
	if config.Writer.Logger == nil {
		config.Writer.Logger = config.Logger
	}

	c := &Chain{
		layers:   make([]*resilience.ResilientLayer, len(layers)),
		writers:  make([]*writer.AsyncWriter, len(layers)),
		ttl:      config.TTL,
		strategy: config.TTLStrategy,
		metrics:  config.Metrics,
		logger:   config.Logger.Named("chain"),
	}

	for i, layer := range layers {
		rl := resilience.NewResilientLayerWithMetrics(layer, layerConfig(config.ResilientConfigs, i), config.Metrics)
		c.layers[i] = rl
		c.writers[i] = writer.NewAsyncWriter(rl, config.Writer)
	}

	return c, nil
}

func layerConfig(configs []resilience.ResilientConfig, i int) resilience.ResilientConfig {
	if i < len(configs) && configs[i].CircuitBreakerConfig.ReadyToTrip != nil {
		return configs[i]
	}

	config := resilience.DefaultResilientConfig()
	if i < len(configs) && configs[i].Timeout > 0 {
		return config.WithTimeout(configs[i].Timeout)
	}
	// L1 is in process and must answer fast; deeper layers cross the network.
	if i == 0 {
		return config.WithTimeout(100 * time.Millisecond)
	}
	return config.WithTimeout(time.Second)
}

// Get returns the view stored under key from the first layer that holds it
// and warms the layers above that one in the background. Concurrent Gets of
// one key share a single traversal.
//
// When no layer holds the key the error of the deepest layer is returned,
// which wraps cache.ErrKeyNotFound unless that layer failed.
func (c *Chain) Get(ctx context.Context, key string) (ledger.AccountView, error) {
	if err := ctx.Err(); err != nil {
		return ledger.AccountView{}, err
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getWithFallback(ctx, key)
	})
	if err != nil {
		return ledger.AccountView{}, err
	}
	return result.(ledger.AccountView), nil
}

func (c *Chain) getWithFallback(ctx context.Context, key string) (ledger.AccountView, error) {
	start := time.Now()
	lastErr := error(cache.ErrKeyNotFound)

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return ledger.AccountView{}, err
		}

		view, err := layer.Get(ctx, key)
		if err != nil {
			// Misses and failing layers alike fall through to the next layer.
			lastErr = err
			continue
		}

		c.metrics.RecordChainGet(true, i, time.Since(start))
		if i > 0 {
			c.warmUpperLayers(ctx, key, view, i)
		}
		return view, nil
	}

	c.metrics.RecordChainGet(false, -1, time.Since(start))
	return ledger.AccountView{}, lastErr
}

// warmUpperLayers queues the view for every layer above hitIndex. Writes
// dropped under backpressure are counted by the writers.
func (c *Chain) warmUpperLayers(ctx context.Context, key string, view ledger.AccountView, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		err := c.writers[i].Write(ctx, key, view, c.strategy.GetTTL(i, c.ttl))
		if err != nil && !errors.Is(err, writer.ErrQueueFull) {
			c.logger.Debug("warm-up skipped",
				zap.String("layer", c.layers[i].Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// Set writes the view to every layer with the TTL the strategy assigns to
// it. All layers are attempted; their errors are combined.
func (c *Chain) Set(ctx context.Context, key string, view ledger.AccountView) error {
	var errs error
	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, layer.Set(ctx, key, view, c.strategy.GetTTL(i, c.ttl)))
	}
	return errs
}

// Delete removes key from every layer. All layers are attempted; their
// errors are combined.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var errs error
	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, layer.Delete(ctx, key))
	}
	return errs
}

// Flush waits until every queued warm-up write has been applied.
func (c *Chain) Flush(timeout time.Duration) error {
	var errs error
	for _, w := range c.writers {
		errs = multierr.Append(errs, w.Flush(timeout))
	}
	return errs
}

// Close drains the warm-up writers, then closes every layer.
func (c *Chain) Close() error {
	var errs error
	for _, w := range c.writers {
		errs = multierr.Append(errs, w.Close())
	}
	for _, layer := range c.layers {
		errs = multierr.Append(errs, layer.Close())
	}
	return errs
}

// Layers returns the guarded layers, fastest first.
func (c *Chain) Layers() []*resilience.ResilientLayer {
	layers := make([]*resilience.ResilientLayer, len(c.layers))
	copy(layers, c.layers)
	return layers
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

// Stats returns the warm-up writer stats of each layer, fastest first.
func (c *Chain) Stats() []writer.AsyncWriterStats {
	stats := make([]writer.AsyncWriterStats, len(c.writers))
	for i, w := range c.writers {
		stats[i] = w.Stats()
	}
	return stats
}

// String returns the layer names in lookup order, e.g. "chain(3 layers): L1 -> L2 -> store".
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}
