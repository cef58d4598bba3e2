// Package redis is the shared (L2) layer of the account view cache, backed by
// rueidis. Views are stored as JSON strings under KeyPrefix + key.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/ledger"

	"github.com/redis/rueidis"
)

// Cache is a cache.Layer backed by a Redis node or cluster.
type Cache struct {
	client rueidis.Client
	config Config
}

// Config holds configuration for the redis layer.
type Config struct {
	// Name is the layer identifier. Default: "L2"
	Name string

	// Addr is the address of a single node, e.g. "localhost:6379".
	Addr string

	// ClusterAddrs lists cluster nodes. When set it takes precedence over Addr.
	ClusterAddrs []string

	Username string
	Password string

	// DB is the database number. Clusters only support 0.
	DB int

	// KeyPrefix is prepended to every key, so several deployments can share
	// one Redis.
	KeyPrefix string

	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the configuration for a local single node.
func DefaultConfig() Config {
	return Config{
		Name:         "L2",
		Addr:         "localhost:6379",
		KeyPrefix:    "ledger:",
		DefaultTTL:   5 * time.Minute,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects to Redis and verifies the connection with PING.
func New(config Config) (*Cache, error) {
	if config.Name == "" {
		config.Name = "L2"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr or ClusterAddrs)")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		MaxFlushDelay:    100 * time.Microsecond,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	c := &Cache{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// Get returns the view under key or cache.ErrKeyNotFound.
func (c *Cache) Get(ctx context.Context, key string) (ledger.AccountView, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(c.config.KeyPrefix+key).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return ledger.AccountView{}, cache.ErrKeyNotFound
		}
		return ledger.AccountView{}, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return ledger.AccountView{}, fmt.Errorf("redis get: failed to read response: %w", err)
	}

	var view ledger.AccountView
	if err := json.Unmarshal(data, &view); err != nil {
		return ledger.AccountView{}, fmt.Errorf("%w: redis get %s: %v", cache.ErrInvalidValue, key, err)
	}
	return view, nil
}

// Set stores view under key with an expiry of ttl, or DefaultTTL when ttl is zero.
func (c *Cache) Set(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis set: failed to marshal: %w", err)
	}

	cmd := c.client.B().Set().Key(c.config.KeyPrefix + key).Value(string(data)).Ex(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	cmd := c.client.B().Del().Key(c.config.KeyPrefix + key).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or cache.ErrKeyNotFound.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	resp := c.client.Do(ctx, c.client.B().Pttl().Key(c.config.KeyPrefix+key).Build())
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	millis, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: failed to read response: %w", err)
	}

	switch millis {
	case -2:
		return 0, cache.ErrKeyNotFound
	case -1:
		return -1, nil
	default:
		return time.Duration(millis) * time.Millisecond, nil
	}
}

// Ping checks that the server answers.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", cache.ErrLayerUnavailable, err)
	}
	return nil
}

// FlushDB removes every key of the selected database.
func (c *Cache) FlushDB(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Flushdb().Build()).Error(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	return nil
}

// Name returns the layer name.
func (c *Cache) Name() string {
	return c.config.Name
}

// Close closes the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}
