// Package config loads the ledgerd configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ebank-ledger/pkg/store/postgres"

	"github.com/sethvargo/go-envconfig"
	"go.uber.org/multierr"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the service configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"LEDGER_ADDR, default=:8080"`

	// Store selects the backend: memory or postgres.
	Store string `env:"LEDGER_STORE, default=memory"`

	// StoreTimeout bounds every guarded store call.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT, default=5s"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`

	Postgres Postgres

	// RedisAddr enables the redis view cache layer when set.
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX, default=ledger:"`

	ViewCacheTTL  time.Duration `env:"VIEW_CACHE_TTL, default=5m"`
	ViewCacheSize int           `env:"VIEW_CACHE_SIZE, default=10000"`

	// NumberFilterCapacity sizes the bloom filter of external numbers.
	NumberFilterCapacity uint `env:"NUMBER_FILTER_CAPACITY, default=100000"`

	// SeedUsers are added to the memory user directory at startup.
	SeedUsers []string `env:"SEED_USERS"`
}

// Postgres holds the connection settings of the postgres backend.
type Postgres struct {
	Host     string `env:"POSTGRES_HOST, default=localhost"`
	Port     int    `env:"POSTGRES_PORT, default=5432"`
	User     string `env:"POSTGRES_USER, default=postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	Database string `env:"POSTGRES_DB, default=ledger"`
	SSLMode  string `env:"POSTGRES_SSLMODE, default=disable"`
}

// FromEnv loads and validates the configuration from the process environment.
func FromEnv(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// FromMap loads and validates the configuration from m instead of the
// process environment.
func FromMap(ctx context.Context, m map[string]string) (Config, error) {
	return load(ctx, envconfig.MapLookuper(m))
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &c, lookuper); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.SeedUsers = trimAll(c.SeedUsers)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges and enumerations. All problems are reported at once.
func (c Config) Validate() error {
	var errs error

	if c.Addr == "" {
		errs = multierr.Append(errs, errors.New("LEDGER_ADDR must not be empty"))
	}
	if c.Store != StoreMemory && c.Store != StorePostgres {
		errs = multierr.Append(errs, fmt.Errorf("LEDGER_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store))
	}
	if c.StoreTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}
	if c.ViewCacheTTL <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("VIEW_CACHE_TTL must be positive, got %s", c.ViewCacheTTL))
	}
	if c.ViewCacheSize < 0 {
		errs = multierr.Append(errs, fmt.Errorf("VIEW_CACHE_SIZE must not be negative, got %d", c.ViewCacheSize))
	}
	if c.NumberFilterCapacity == 0 {
		errs = multierr.Append(errs, errors.New("NUMBER_FILTER_CAPACITY must be positive"))
	}
	if c.Store == StorePostgres {
		if c.Postgres.Host == "" {
			errs = multierr.Append(errs, errors.New("POSTGRES_HOST must not be empty"))
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = multierr.Append(errs, fmt.Errorf("POSTGRES_PORT out of range: %d", c.Postgres.Port))
		}
	}

	if errs != nil {
		return fmt.Errorf("config: %w", errs)
	}
	return nil
}

// PostgresConfig converts the connection settings into a postgres.Config.
func (c Config) PostgresConfig() postgres.Config {
	pc := postgres.DefaultConfig()
	pc.Host = c.Postgres.Host
	pc.Port = c.Postgres.Port
	pc.User = c.Postgres.User
	pc.Password = c.Postgres.Password
	pc.Database = c.Postgres.Database
	pc.SSLMode = c.Postgres.SSLMode
	return pc
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
