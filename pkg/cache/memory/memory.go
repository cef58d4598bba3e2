// Package memory is the in-process (L1) layer of the account view cache.
package memory

import (
	"context"
	"sync"
	"time"

	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/ledger"
)

// Cache keeps account views in a map with TTL expiry and LRU eviction once
// MaxSize entries are held.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cache.Entry
	config  Config

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
}

// Config holds configuration for the memory layer.
type Config struct {
	// Name is the layer identifier. Default: "L1"
	Name string

	// MaxSize is the maximum number of entries (0 = unlimited)
	MaxSize int

	// DefaultTTL applies when Set is called with a zero ttl. Default: 5m
	DefaultTTL time.Duration

	// CleanupInterval is how often expired entries are swept. Default: 1m
	CleanupInterval time.Duration
}

// New creates a memory layer and starts its cleanup goroutine.
func New(config Config) *Cache {
	if config.Name == "" {
		config.Name = "L1"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	c := &Cache{
		entries:       make(map[string]*cache.Entry),
		config:        config,
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
	}

	c.wg.Add(1)
	go c.cleanup()

	return c
}

// Get returns the view under key or cache.ErrKeyNotFound.
func (c *Cache) Get(ctx context.Context, key string) (ledger.AccountView, error) {
	if err := cache.ValidateKey(key); err != nil {
		return ledger.AccountView{}, err
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return ledger.AccountView{}, cache.ErrKeyNotFound
	}
	if e.IsExpired(now) {
		delete(c.entries, key)
		return ledger.AccountView{}, cache.ErrKeyNotFound
	}

	e.AccessedAt = now
	return e.View, nil
}

// Set stores view under key. Evicts the least recently used entry when the
// cache is full and key is new.
func (c *Cache) Set(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.config.MaxSize > 0 && len(c.entries) >= c.config.MaxSize {
		c.evictLRU()
	}

	c.entries[key] = &cache.Entry{
		View:       view,
		ExpiresAt:  now.Add(ttl),
		AccessedAt: now,
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	return nil
}

// Name returns the layer name.
func (c *Cache) Name() string {
	return c.config.Name
}

// Close stops the cleanup goroutine and drops every entry.
func (c *Cache) Close() error {
	c.cleanupTicker.Stop()
	close(c.stopCleanup)
	c.wg.Wait()

	c.mu.Lock()
	c.entries = make(map[string]*cache.Entry)
	c.mu.Unlock()

	return nil
}

// Len returns the number of held entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLRU must be called with mu held.
func (c *Cache) evictLRU() {
	var (
		lruKey  string
		lruTime time.Time
	)
	for k, e := range c.entries {
		if lruKey == "" || e.AccessedAt.Before(lruTime) {
			lruKey = k
			lruTime = e.AccessedAt
		}
	}
	if lruKey != "" {
		delete(c.entries, lruKey)
	}
}

func (c *Cache) cleanup() {
	defer c.wg.Done()

	for {
		select {
		case now := <-c.cleanupTicker.C:
			c.removeExpired(now)
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache) removeExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.IsExpired(now) {
			delete(c.entries, key)
		}
	}
}
