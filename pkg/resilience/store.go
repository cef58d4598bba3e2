package resilience

import (
	"context"
	"errors"

	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"
	"ebank-ledger/pkg/metrics"
)

// Store wraps a ledger.Store with a circuit breaker and a timeout.
//
// Every Atomic scope and every read outside a scope is one guarded call.
// Business rejections (insufficient funds, unknown account, ...) are
// returned unchanged and never count against the breaker.
type Store struct {
	store ledger.Store
	guard *guard
}

// StoreConfig holds the optional collaborators of a Store.
type StoreConfig struct {
	// Name labels the breaker in logs and metrics. Default: "store"
	Name string

	// Resilience configures the guard. The zero value means DefaultStoreConfig().
	Resilience ResilientConfig

	Metrics metrics.Collector
	Logger  *logging.Logger
}

// NewStore wraps store.
func NewStore(store ledger.Store, config StoreConfig) *Store {
	if config.Name == "" {
		config.Name = "store"
	}
	if config.Resilience.isZero() {
		config.Resilience = DefaultStoreConfig()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}

	return &Store{
		store: store,
		guard: newGuard(
			config.Name,
			config.Resilience,
			config.Metrics,
			config.Logger.Named("resilience").Named(config.Name),
			storeSuccess,
		),
	}
}

func storeSuccess(err error) bool {
	return err == nil || ledger.IsBusinessError(err) || errors.Is(err, context.Canceled)
}

// Accounts returns the guarded account store.
func (s *Store) Accounts() ledger.AccountStore {
	return guardedAccounts{accounts: s.store.Accounts(), guard: s.guard}
}

// Transactions returns the guarded transaction log.
func (s *Store) Transactions() ledger.TransactionLog {
	return guardedLog{log: s.store.Transactions(), guard: s.guard}
}

// Atomic runs the whole scope as one guarded call. The timeout covers the
// scope including its commit.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.guard.do(ctx, "atomic", func(ctx context.Context) error {
		return s.store.Atomic(ctx, fn)
	})
}

// State returns the current breaker state.
func (s *Store) State() metrics.CircuitState {
	return s.guard.state()
}

type guardedAccounts struct {
	accounts ledger.AccountStore
	guard    *guard
}

func (g guardedAccounts) Get(ctx context.Context, id int64) (ledger.Account, error) {
	var account ledger.Account
	err := g.guard.do(ctx, "get_account", func(ctx context.Context) error {
		var err error
		account, err = g.accounts.Get(ctx, id)
		return err
	})
	return account, err
}

func (g guardedAccounts) GetByNumber(ctx context.Context, number string) (ledger.Account, error) {
	var account ledger.Account
	err := g.guard.do(ctx, "get_account_by_number", func(ctx context.Context) error {
		var err error
		account, err = g.accounts.GetByNumber(ctx, number)
		return err
	})
	return account, err
}

func (g guardedAccounts) Save(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	var saved ledger.Account
	err := g.guard.do(ctx, "save_account", func(ctx context.Context) error {
		var err error
		saved, err = g.accounts.Save(ctx, account)
		return err
	})
	return saved, err
}

func (g guardedAccounts) ListExcluding(ctx context.Context, id int64) ([]ledger.Account, error) {
	var accounts []ledger.Account
	err := g.guard.do(ctx, "list_accounts", func(ctx context.Context) error {
		var err error
		accounts, err = g.accounts.ListExcluding(ctx, id)
		return err
	})
	return accounts, err
}

type guardedLog struct {
	log   ledger.TransactionLog
	guard *guard
}

func (g guardedLog) Append(ctx context.Context, entry ledger.Transaction) (ledger.Transaction, error) {
	var appended ledger.Transaction
	err := g.guard.do(ctx, "append_transaction", func(ctx context.Context) error {
		var err error
		appended, err = g.log.Append(ctx, entry)
		return err
	})
	return appended, err
}

func (g guardedLog) ListByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	var entries []ledger.Transaction
	err := g.guard.do(ctx, "list_transactions", func(ctx context.Context) error {
		var err error
		entries, err = g.log.ListByAccount(ctx, accountID)
		return err
	})
	return entries, err
}
