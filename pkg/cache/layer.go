// Package cache defines the layers of the account view cache.
//
// A layer stores ledger.AccountView values under string keys built by
// AccountKey. Views never change after an account is created, so layers
// only ever need TTL expiry, never invalidation on writes.
package cache

import (
	"context"
	"time"

	"ebank-ledger/pkg/ledger"
)

// Layer is one level of the view cache (memory, redis, the ledger store).
type Layer interface {
	// Get returns the view stored under key, or an error wrapping
	// ErrKeyNotFound when the layer does not hold it.
	Get(ctx context.Context, key string) (ledger.AccountView, error)

	// Set stores view under key for ttl. A zero ttl means the layer default.
	Set(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics (e.g. "L1", "redis").
	Name() string

	// Close releases the resources held by the layer.
	Close() error
}

// Entry is a view held by an in-process layer.
type Entry struct {
	View       ledger.AccountView
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// IsExpired reports whether the entry is past its expiry at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TimeToLive returns the remaining lifetime of the entry, or 0 once expired.
func (e *Entry) TimeToLive(now time.Time) time.Duration {
	if e.IsExpired(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}
