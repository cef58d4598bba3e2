// Package views serves account views through the cache chain, with the
// ledger store as its last layer.
package views

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ebank-ledger/pkg/cache"
	"ebank-ledger/pkg/chain"
	"ebank-ledger/pkg/ledger"
)

// AccountSource resolves an account view from the authoritative store.
// *ledger.Engine satisfies it.
type AccountSource interface {
	Account(ctx context.Context, id int64) (ledger.AccountView, error)
}

// SourceLayer is a read-only cache.Layer over an AccountSource. It is the
// last layer of the chain: a miss here means the account does not exist.
type SourceLayer struct {
	source AccountSource
	name   string
}

// NewSourceLayer creates the store layer. An empty name means "store".
func NewSourceLayer(source AccountSource, name string) *SourceLayer {
	if name == "" {
		name = "store"
	}
	return &SourceLayer{source: source, name: name}
}

// Get parses the account id out of key and loads the view.
func (s *SourceLayer) Get(ctx context.Context, key string) (ledger.AccountView, error) {
	id, err := cache.ParseAccountKey(key)
	if err != nil {
		return ledger.AccountView{}, err
	}

	view, err := s.source.Account(ctx, id)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ledger.AccountView{}, fmt.Errorf("%w: %s", cache.ErrKeyNotFound, key)
	}
	return view, err
}

// Set is a no-op; the store is written by the ledger only.
func (s *SourceLayer) Set(ctx context.Context, key string, view ledger.AccountView, ttl time.Duration) error {
	return nil
}

// Delete is a no-op.
func (s *SourceLayer) Delete(ctx context.Context, key string) error { return nil }

// Name returns the layer name.
func (s *SourceLayer) Name() string { return s.name }

// Close is a no-op.
func (s *SourceLayer) Close() error { return nil }

// Reader looks up account views through a chain.
type Reader struct {
	chain *chain.Chain
}

// NewReader creates a reader over c. The last layer of c should be a
// SourceLayer, possibly wrapped in a cache.NegativeLayer.
func NewReader(c *chain.Chain) *Reader {
	return &Reader{chain: c}
}

// Account returns the view of account id. Unknown ids yield an error
// wrapping ledger.ErrAccountNotFound.
func (r *Reader) Account(ctx context.Context, id int64) (ledger.AccountView, error) {
	if id <= 0 {
		return ledger.AccountView{}, fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, id)
	}

	view, err := r.chain.Get(ctx, cache.AccountKey(id))
	if cache.IsNotFound(err) {
		return ledger.AccountView{}, fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, id)
	}
	return view, err
}

// Put stores the view of a freshly created account in every layer and
// clears any miss remembered for its id.
func (r *Reader) Put(ctx context.Context, view ledger.AccountView) error {
	return r.chain.Set(ctx, cache.AccountKey(view.ID), view)
}

// Close closes the chain.
func (r *Reader) Close() error {
	return r.chain.Close()
}
