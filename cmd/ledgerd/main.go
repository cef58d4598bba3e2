// Command ledgerd serves the ledger over HTTP.
//
// Configuration comes from the environment; see pkg/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ebank-ledger/pkg/api"
	"ebank-ledger/pkg/bloom"
	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/cache/memory"
	"ebank-ledger/pkg/cache/redis"
	"ebank-ledger/pkg/chain"
	"ebank-ledger/pkg/config"
	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"
	promMetrics "ebank-ledger/pkg/metrics/prometheus"
	"ebank-ledger/pkg/resilience"
	memstore "ebank-ledger/pkg/store/memory"
	"ebank-ledger/pkg/store/postgres"
	"ebank-ledger/pkg/views"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.NewLoggerFromEnv(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("ledgerd stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// backend is the store chosen by LEDGER_STORE together with its user
// directory.
type backend struct {
	store ledger.Store
	users ledger.UserDirectory

	// registry is set for the memory backend, which accepts POST /users.
	registry api.UserRegistry

	seed   func(ctx context.Context, username string) error
	closer io.Closer
}

func run(ctx context.Context, logger *logging.Logger) error {
	cfg, err := config.FromEnv(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := promMetrics.NewCollector("ledger")
	if err := collector.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var closers []io.Closer
	if b.closer != nil {
		closers = append(closers, b.closer)
	}

	for _, username := range cfg.SeedUsers {
		if err := b.seed(ctx, username); err != nil && !errors.Is(err, ledger.ErrUserExists) {
			return multierr.Append(fmt.Errorf("seed user %s: %w", username, err), closeAll(closers))
		}
	}

	storeGuard := resilience.DefaultStoreConfig().WithTimeout(cfg.StoreTimeout)
	store := resilience.NewStore(b.store, resilience.StoreConfig{
		Resilience: storeGuard,
		Metrics:    collector,
		Logger:     logger,
	})

	engine := ledger.NewEngine(store, ledger.EngineConfig{Metrics: collector, Logger: logger})

	filter := bloom.New(cfg.NumberFilterCapacity, 0.01)
	provisioner := ledger.NewProvisioner(store, b.users, ledger.ProvisionerConfig{
		Filter:  filter,
		Metrics: collector,
	})
	warmed, err := provisioner.WarmFilter(ctx)
	if err != nil {
		return multierr.Append(err, closeAll(closers))
	}
	logger.Info("number filter warmed", zap.Int("numbers", warmed))

	viewChain, err := buildViewChain(cfg, engine, collector, logger)
	if err != nil {
		return multierr.Append(err, closeAll(closers))
	}
	reader := views.NewReader(viewChain)
	// The reader drains warm-up writes and closes the layers; it goes first.
	closers = append([]io.Closer{reader}, closers...)

	server, err := api.NewServer(api.Dependencies{
		Ledger:     engine,
		Accounts:   provisioner,
		Views:      reader,
		Users:      b.registry,
		Status:     statusReporter(store, viewChain, filter),
		LogLevel:   logger.LevelHandler(),
		Registerer: registry,
		Gatherer:   registry,
		Logger:     logger,
	}, api.ServerConfig{
		Address:        cfg.Addr,
		ReadTimeout:    api.DefaultServerConfig().ReadTimeout,
		WriteTimeout:   api.DefaultServerConfig().WriteTimeout,
		RequestTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return multierr.Append(err, closeAll(closers))
	}

	logger.Info("ledgerd starting",
		zap.String("address", cfg.Addr),
		zap.String("store", cfg.Store),
		zap.String("view_cache", viewChain.String()),
	)

	var runErr error
	select {
	case err := <-server.Start():
		runErr = err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err = multierr.Combine(runErr, server.Stop(shutdownCtx), closeAll(closers))
	if err == nil {
		logger.Info("ledgerd stopped")
	}
	return err
}

func openBackend(ctx context.Context, cfg config.Config, logger *logging.Logger) (backend, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.PostgresConfig())
		if err != nil {
			return backend{}, err
		}
		logger.Info("postgres store ready",
			zap.String("host", cfg.Postgres.Host),
			zap.String("database", cfg.Postgres.Database),
		)
		users := pg.Users()
		return backend{
			store: pg,
			users: users,
			seed: func(ctx context.Context, username string) error {
				_, err := users.Add(ctx, username, "")
				return err
			},
			closer: pg,
		}, nil

	default:
		users := memstore.NewDirectory()
		logger.Warn("memory store in use, balances are lost on restart")
		return backend{
			store:    memstore.New(),
			users:    users,
			registry: users,
			seed: func(ctx context.Context, username string) error {
				_, err := users.Add(ctx, username, "")
				return err
			},
		}, nil
	}
}

// buildViewChain assembles L1 memory, the optional redis L2 and the store
// as the last layer.
func buildViewChain(cfg config.Config, engine *ledger.Engine, collector *promMetrics.Collector, logger *logging.Logger) (*chain.Chain, error) {
	layers := []cache.Layer{
		memory.New(memory.Config{
			Name:       "L1",
			MaxSize:    cfg.ViewCacheSize,
			DefaultTTL: cfg.ViewCacheTTL,
		}),
	}

	if cfg.RedisAddr != "" {
		redisConfig := redis.DefaultConfig()
		redisConfig.Addr = cfg.RedisAddr
		redisConfig.KeyPrefix = cfg.RedisKeyPrefix
		redisConfig.DefaultTTL = cfg.ViewCacheTTL

		l2, err := redis.New(redisConfig)
		if err != nil {
			// The store still answers every lookup; run without L2.
			logger.Warn("redis unavailable, view cache runs without L2",
				zap.String("addr", cfg.RedisAddr),
				zap.Error(err),
			)
		} else {
			layers = append(layers, l2)
		}
	}

	layers = append(layers, cache.NewNegativeLayer(views.NewSourceLayer(engine, "store"), 0))

	return chain.NewWithConfig(chain.Config{
		TTL:         cfg.ViewCacheTTL,
		TTLStrategy: &chain.DecayingTTLStrategy{DecayFactor: 0.5},
		Metrics:     collector,
		Logger:      logger,
	}, layers...)
}

func statusReporter(store *resilience.Store, c *chain.Chain, filter *bloom.Filter) func() map[string]string {
	return func() map[string]string {
		status := map[string]string{
			"store": store.State().String(),
		}
		for _, layer := range c.Layers() {
			status["cache."+layer.Name()] = layer.State().String()
		}
		stats := filter.Stats()
		status["number_filter"] = fmt.Sprintf("%d added, %.0f%% of lookups skipped", stats.Added, stats.RejectionRate*100)
		return status
	}
}

func closeAll(closers []io.Closer) error {
	var errs error
	for _, c := range closers {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}
