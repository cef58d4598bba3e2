package ledger

import (
	"context"
	"fmt"
	"time"

	"ebank-ledger/pkg/logging"
	"ebank-ledger/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Operation names reported to metrics.
const (
	OpDeposit       = "deposit"
	OpWithdraw      = "withdraw"
	OpTransfer      = "transfer"
	OpCreateAccount = "create_account"
)

// Engine is the only component allowed to change balances.
//
// Operations touching the same account serialize on a per-account lock;
// operations on unrelated accounts run in parallel. A transfer takes both
// locks in ascending id order before reading either account.
type Engine struct {
	store   Store
	locks   *lockTable
	metrics metrics.Collector
	logger  *logging.Logger
}

// EngineConfig holds the optional collaborators of an Engine.
type EngineConfig struct {
	// Metrics receives one RecordOperation call per operation. Defaults to no-op.
	Metrics metrics.Collector

	// Logger receives debug entries for committed transactions.
	// Defaults to the global logger.
	Logger *logging.Logger
}

// NewEngine creates an engine over the given store.
func NewEngine(store Store, config EngineConfig) *Engine {
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}

	return &Engine{
		store:   store,
		locks:   newLockTable(),
		metrics: config.Metrics,
		logger:  config.Logger.Named("engine"),
	}
}

// Deposit credits amount to the account and records a DEPOSIT transaction.
func (e *Engine) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (Transaction, error) {
	start := time.Now()
	tx, err := e.deposit(ctx, accountID, amount)
	e.observe(OpDeposit, start, tx, err)
	return tx, err
}

func (e *Engine) deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return Transaction{}, err
	}

	var recorded Transaction
	err := e.mutate(ctx, []int64{accountID}, func(tx Tx) error {
		account, err := tx.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}

		account.Balance = account.Balance.Add(amount)
		if _, err := tx.Accounts().Save(ctx, account); err != nil {
			return err
		}

		recorded, err = tx.Transactions().Append(ctx, Transaction{
			Kind:   KindDeposit,
			From:   accountID,
			To:     accountID,
			Amount: amount,
		})
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return recorded, nil
}

// Withdraw debits amount from the account and records a WITHDRAW transaction.
// The balance may reach zero but never drop below it.
func (e *Engine) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (Transaction, error) {
	start := time.Now()
	tx, err := e.withdraw(ctx, accountID, amount)
	e.observe(OpWithdraw, start, tx, err)
	return tx, err
}

func (e *Engine) withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return Transaction{}, err
	}

	var recorded Transaction
	err := e.mutate(ctx, []int64{accountID}, func(tx Tx) error {
		account, err := tx.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}

		remaining := account.Balance.Sub(amount)
		if remaining.IsNegative() {
			return fmt.Errorf("%w: account %d holds %s, requested %s",
				ErrInsufficientFunds, accountID, account.Balance, amount)
		}

		account.Balance = remaining
		if _, err := tx.Accounts().Save(ctx, account); err != nil {
			return err
		}

		recorded, err = tx.Transactions().Append(ctx, Transaction{
			Kind:   KindWithdraw,
			From:   accountID,
			To:     accountID,
			Amount: amount,
		})
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return recorded, nil
}

// Transfer moves amount from fromID to toID and records a TRANSFER transaction.
//
// The source must keep a strictly positive balance after the debit: a
// transfer that would leave it at zero or below is rejected with
// ErrInsufficientFunds and changes nothing.
func (e *Engine) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) (Transaction, error) {
	start := time.Now()
	tx, err := e.transfer(ctx, fromID, toID, amount)
	e.observe(OpTransfer, start, tx, err)
	return tx, err
}

func (e *Engine) transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) (Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return Transaction{}, err
	}
	if fromID == toID {
		return Transaction{}, fmt.Errorf("%w: account %d", ErrSameAccount, fromID)
	}

	var recorded Transaction
	err := e.mutate(ctx, []int64{fromID, toID}, func(tx Tx) error {
		// Row locks, where the backend has them, follow the same ascending
		// order as the in-process locks.
		lowID, highID := fromID, toID
		if highID < lowID {
			lowID, highID = highID, lowID
		}
		low, err := tx.Accounts().Get(ctx, lowID)
		if err != nil {
			return err
		}
		high, err := tx.Accounts().Get(ctx, highID)
		if err != nil {
			return err
		}

		from, to := low, high
		if from.ID != fromID {
			from, to = high, low
		}

		debited := from.Balance.Sub(amount)
		if !debited.IsPositive() {
			return fmt.Errorf("%w: account %d holds %s, requested %s",
				ErrInsufficientFunds, fromID, from.Balance, amount)
		}
		from.Balance = debited
		to.Balance = to.Balance.Add(amount)

		if _, err := tx.Accounts().Save(ctx, from); err != nil {
			return err
		}
		if _, err := tx.Accounts().Save(ctx, to); err != nil {
			return err
		}

		recorded, err = tx.Transactions().Append(ctx, Transaction{
			Kind:   KindTransfer,
			From:   fromID,
			To:     toID,
			Amount: amount,
		})
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return recorded, nil
}

// Account returns the public projection of an account.
func (e *Engine) Account(ctx context.Context, id int64) (AccountView, error) {
	account, err := e.store.Accounts().Get(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	return account.View(), nil
}

// Balance returns the current balance of an account.
func (e *Engine) Balance(ctx context.Context, id int64) (decimal.Decimal, error) {
	account, err := e.store.Accounts().Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// TransferTargets lists every account a transfer from id could credit.
func (e *Engine) TransferTargets(ctx context.Context, id int64) ([]AccountView, error) {
	if _, err := e.store.Accounts().Get(ctx, id); err != nil {
		return nil, err
	}

	accounts, err := e.store.Accounts().ListExcluding(ctx, id)
	if err != nil {
		return nil, err
	}

	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, a.View())
	}
	return views, nil
}

// History returns the transactions that debited or credited the account.
func (e *Engine) History(ctx context.Context, id int64) ([]Transaction, error) {
	if _, err := e.store.Accounts().Get(ctx, id); err != nil {
		return nil, err
	}
	return e.store.Transactions().ListByAccount(ctx, id)
}

// mutate runs fn inside the store's atomic scope while holding the locks of
// every involved account. The locks are released once the scope has
// committed or rolled back.
func (e *Engine) mutate(ctx context.Context, ids []int64, fn func(tx Tx) error) error {
	unlock, err := e.locks.acquire(ctx, ids...)
	if err != nil {
		return err
	}
	defer unlock()

	return e.store.Atomic(ctx, fn)
}

func (e *Engine) observe(op string, start time.Time, tx Transaction, err error) {
	e.metrics.RecordOperation(op, Classify(err), time.Since(start))
	if err != nil {
		return
	}

	e.logger.Debug("transaction committed",
		zap.Int64("transaction_id", tx.ID),
		zap.String("kind", string(tx.Kind)),
		zap.Int64("from", tx.From),
		zap.Int64("to", tx.To),
		zap.String("amount", tx.Amount.String()),
	)
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	return nil
}
