package cache

import (
	"context"
	"sync"
	"time"

	"ebank-ledger/pkg/ledger"
)

// NegativeLayer remembers misses of the wrapped layer for a short time, so
// repeated lookups of an unknown account id do not reach the store.
// Set clears the remembered miss for its key.
type NegativeLayer struct {
	layer Layer
	ttl   time.Duration

	mu     sync.RWMutex
	misses map[string]time.Time

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewNegativeLayer wraps layer. A non-positive ttl means one second.
func NewNegativeLayer(layer Layer, ttl time.Duration) *NegativeLayer {
	if ttl <= 0 {
		ttl = time.Second
	}

	n := &NegativeLayer{
		layer:       layer,
		ttl:         ttl,
		misses:      make(map[string]time.Time),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go n.cleanup()
	return n
}

// Name returns the name of the wrapped layer.
func (n *NegativeLayer) Name() string {
	return n.layer.Name()
}

// Get answers from the remembered misses first, then from the wrapped layer.
func (n *NegativeLayer) Get(ctx context.Context, key string) (ledger.AccountView, error) {
	if n.remembered(key) {
		return ledger.AccountView{}, ErrKeyNotFound
	}

	view, err := n.layer.Get(ctx, key)
	if IsNotFound(err) {
		n.remember(key)
	}
	return view, err
}

// Set forgets any remembered miss for key and writes through.
func (n *NegativeLayer) Set(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
	n.Forget(key)
	return n.layer.Set(ctx, key, view, ttl)
}

// Delete writes through. The key is not remembered as missing.
func (n *NegativeLayer) Delete(ctx context.Context, key string) error {
	return n.layer.Delete(ctx, key)
}

// Forget drops the remembered miss for key.
func (n *NegativeLayer) Forget(key string) {
	n.mu.Lock()
	delete(n.misses, key)
	n.mu.Unlock()
}

// Len returns the number of remembered misses, expired ones included.
func (n *NegativeLayer) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.misses)
}

// Close stops the cleanup goroutine and closes the wrapped layer.
func (n *NegativeLayer) Close() error {
	close(n.stopCleanup)
	<-n.cleanupDone
	return n.layer.Close()
}

func (n *NegativeLayer) remembered(key string) bool {
	n.mu.RLock()
	expiresAt, ok := n.misses[key]
	n.mu.RUnlock()
	return ok && time.Now().Before(expiresAt)
}

func (n *NegativeLayer) remember(key string) {
	n.mu.Lock()
	n.misses[key] = time.Now().Add(n.ttl)
	n.mu.Unlock()
}

func (n *NegativeLayer) cleanup() {
	defer close(n.cleanupDone)

	ticker := time.NewTicker(n.ttl)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			n.mu.Lock()
			for key, expiresAt := range n.misses {
				if now.After(expiresAt) {
					delete(n.misses, key)
				}
			}
			n.mu.Unlock()
		case <-n.stopCleanup:
			return
		}
	}
}
