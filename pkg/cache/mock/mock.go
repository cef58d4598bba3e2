// Package mock provides a cache.Layer with injectable behaviour for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/ledger"
)

// Layer is a cache.Layer whose methods call the matching hook when set.
// Call counts are tracked atomically.
type Layer struct {
	GetFunc    func(ctx context.Context, key string) (ledger.AccountView, error)
	SetFunc    func(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error

	name string

	getCalls    atomic.Int64
	setCalls    atomic.Int64
	deleteCalls atomic.Int64
	closeCalls  atomic.Int64
}

// NewLayer creates a layer that misses on every Get and accepts every write.
func NewLayer(name string) *Layer {
	return &Layer{name: name}
}

// NewStoreLayer creates a layer backed by a map, behaving like a real cache.
func NewStoreLayer(name string) *Layer {
	var (
		mu    sync.RWMutex
		views = make(map[string]ledger.AccountView)
	)

	return &Layer{
		name: name,
		GetFunc: func(ctx context.Context, key string) (ledger.AccountView, error) {
			mu.RLock()
			defer mu.RUnlock()
			v, ok := views[key]
			if !ok {
				return ledger.AccountView{}, cache.ErrKeyNotFound
			}
			return v, nil
		},
		SetFunc: func(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
			mu.Lock()
			views[key] = view
			mu.Unlock()
			return nil
		},
		DeleteFunc: func(ctx context.Context, key string) error {
			mu.Lock()
			delete(views, key)
			mu.Unlock()
			return nil
		},
	}
}

// Get implements cache.Layer.
func (m *Layer) Get(ctx context.Context, key string) (ledger.AccountView, error) {
	m.getCalls.Add(1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return ledger.AccountView{}, cache.ErrKeyNotFound
}

// Set implements cache.Layer.
func (m *Layer) Set(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
	m.setCalls.Add(1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, view, ttl)
	}
	return nil
}

// Delete implements cache.Layer.
func (m *Layer) Delete(ctx context.Context, key string) error {
	m.deleteCalls.Add(1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

// Name implements cache.Layer.
func (m *Layer) Name() string {
	return m.name
}

// Close implements cache.Layer.
func (m *Layer) Close() error {
	m.closeCalls.Add(1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// GetCalls returns the number of Get calls.
func (m *Layer) GetCalls() int { return int(m.getCalls.Load()) }

// SetCalls returns the number of Set calls.
func (m *Layer) SetCalls() int { return int(m.setCalls.Load()) }

// DeleteCalls returns the number of Delete calls.
func (m *Layer) DeleteCalls() int { return int(m.deleteCalls.Load()) }

// CloseCalls returns the number of Close calls.
func (m *Layer) CloseCalls() int { return int(m.closeCalls.Load()) }
