package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ebank-ledger/pkg/ledger"
	metricsmemory "ebank-ledger/pkg/metrics/memory"
	memstore "ebank-ledger/pkg/store/memory"

	"github.com/shopspring/decimal"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// openAccount stores an account holding balance and returns its id.
func openAccount(t *testing.T, store *memstore.Store, number, balance string) int64 {
	t.Helper()

	account, err := store.Accounts().Save(context.Background(), ledger.Account{
		Number:  number,
		Owner:   "alice",
		Balance: amount(balance),
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return account.ID
}

func balanceOf(t *testing.T, engine *ledger.Engine, id int64) decimal.Decimal {
	t.Helper()

	balance, err := engine.Balance(context.Background(), id)
	if err != nil {
		t.Fatalf("Balance(%d) failed: %v", id, err)
	}
	return balance
}

func assertBalance(t *testing.T, engine *ledger.Engine, id int64, want string) {
	t.Helper()

	if got := balanceOf(t, engine, id); !got.Equal(amount(want)) {
		t.Errorf("Expected account %d to hold %s, got %s", id, want, got)
	}
}

func logLen(t *testing.T, store *memstore.Store) int {
	t.Helper()
	_, n := store.Len()
	return n
}

func TestEngine_Deposit(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	id := openAccount(t, store, "ACC-1", "10.50")

	tx, err := engine.Deposit(ctx, id, amount("4.25"))
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if tx.ID == 0 {
		t.Error("Expected transaction id to be assigned")
	}
	if tx.Kind != ledger.KindDeposit || tx.From != id || tx.To != id {
		t.Errorf("Unexpected transaction %+v", tx)
	}
	if !tx.Amount.Equal(amount("4.25")) {
		t.Errorf("Expected amount 4.25, got %s", tx.Amount)
	}
	if tx.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	assertBalance(t, engine, id, "14.75")
	if n := logLen(t, store); n != 1 {
		t.Errorf("Expected 1 transaction, got %d", n)
	}
}

func TestEngine_Withdraw(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	id := openAccount(t, store, "ACC-1", "50")

	tx, err := engine.Withdraw(ctx, id, amount("20"))
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if tx.Kind != ledger.KindWithdraw || tx.From != id || tx.To != id {
		t.Errorf("Unexpected transaction %+v", tx)
	}
	assertBalance(t, engine, id, "30")

	// Down to exactly zero is allowed.
	if _, err := engine.Withdraw(ctx, id, amount("30")); err != nil {
		t.Fatalf("Withdraw to zero failed: %v", err)
	}
	assertBalance(t, engine, id, "0")

	_, err = engine.Withdraw(ctx, id, amount("0.01"))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	assertBalance(t, engine, id, "0")

	if n := logLen(t, store); n != 2 {
		t.Errorf("Expected 2 transactions, got %d", n)
	}
}

func TestEngine_TransferScenario(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	a := openAccount(t, store, "ACC-A", "100")
	b := openAccount(t, store, "ACC-B", "0")

	_, err := engine.Transfer(ctx, a, b, amount("100"))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	assertBalance(t, engine, a, "100")
	assertBalance(t, engine, b, "0")
	if n := logLen(t, store); n != 0 {
		t.Fatalf("Expected empty log after rejected transfer, got %d entries", n)
	}

	tx, err := engine.Transfer(ctx, a, b, amount("40"))
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if tx.Kind != ledger.KindTransfer || tx.From != a || tx.To != b {
		t.Errorf("Unexpected transaction %+v", tx)
	}
	if !tx.Amount.Equal(amount("40")) {
		t.Errorf("Expected amount 40, got %s", tx.Amount)
	}
	assertBalance(t, engine, a, "60")
	assertBalance(t, engine, b, "40")

	history, err := engine.History(ctx, b)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != tx.ID {
		t.Errorf("Expected history of B to hold the transfer, got %+v", history)
	}
}

func TestEngine_SubCentTransferConserves(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	a := openAccount(t, store, "ACC-A", "10.00")
	b := openAccount(t, store, "ACC-B", "0")

	tx, err := engine.Transfer(ctx, a, b, amount("0.005"))
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	assertBalance(t, engine, a, "9.995")
	assertBalance(t, engine, b, "0.005")
	if sum := balanceOf(t, engine, a).Add(balanceOf(t, engine, b)); !sum.Equal(amount("10")) {
		t.Errorf("Expected total 10, got %s", sum)
	}

	history, err := engine.History(ctx, b)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || !history[0].Amount.Equal(tx.Amount) {
		t.Errorf("Expected one logged transfer of %s, got %+v", tx.Amount, history)
	}
}

func TestEngine_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		op      func(ctx context.Context, e *ledger.Engine, a, b int64) error
		wantErr error
	}{
		{
			name: "deposit zero",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Deposit(ctx, a, decimal.Zero)
				return err
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "withdraw negative",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Withdraw(ctx, a, amount("-5"))
				return err
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "transfer zero",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Transfer(ctx, a, b, decimal.Zero)
				return err
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "deposit to unknown account",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Deposit(ctx, 999, amount("1"))
				return err
			},
			wantErr: ledger.ErrAccountNotFound,
		},
		{
			name: "withdraw from unknown account",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Withdraw(ctx, 999, amount("1"))
				return err
			},
			wantErr: ledger.ErrAccountNotFound,
		},
		{
			name: "transfer to unknown account",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Transfer(ctx, a, 999, amount("1"))
				return err
			},
			wantErr: ledger.ErrAccountNotFound,
		},
		{
			name: "transfer from unknown account",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Transfer(ctx, 999, b, amount("1"))
				return err
			},
			wantErr: ledger.ErrAccountNotFound,
		},
		{
			name: "transfer to self",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Transfer(ctx, a, a, amount("1"))
				return err
			},
			wantErr: ledger.ErrSameAccount,
		},
		{
			name: "self transfer with invalid amount reports the amount",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Transfer(ctx, a, a, amount("-1"))
				return err
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "transfer draining the source",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Transfer(ctx, a, b, amount("100"))
				return err
			},
			wantErr: ledger.ErrInsufficientFunds,
		},
		{
			name: "withdraw more than the balance",
			op: func(ctx context.Context, e *ledger.Engine, a, b int64) error {
				_, err := e.Withdraw(ctx, a, amount("100.01"))
				return err
			},
			wantErr: ledger.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			engine := ledger.NewEngine(store, ledger.EngineConfig{})
			a := openAccount(t, store, "ACC-A", "100")
			b := openAccount(t, store, "ACC-B", "5")

			err := tt.op(context.Background(), engine, a, b)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if !ledger.IsBusinessError(err) {
				t.Errorf("Expected %v to be a business error", err)
			}

			assertBalance(t, engine, a, "100")
			assertBalance(t, engine, b, "5")
			if n := logLen(t, store); n != 0 {
				t.Errorf("Expected empty log, got %d entries", n)
			}
		})
	}
}

// failingLogStore commits nothing when the transaction log rejects an append.
type failingLogStore struct {
	*memstore.Store
	err error
}

func (s failingLogStore) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.Atomic(ctx, func(tx ledger.Tx) error {
		return fn(failingLogTx{Tx: tx, err: s.err})
	})
}

type failingLogTx struct {
	ledger.Tx
	err error
}

func (tx failingLogTx) Transactions() ledger.TransactionLog {
	return failingLog{TransactionLog: tx.Tx.Transactions(), err: tx.err}
}

type failingLog struct {
	ledger.TransactionLog
	err error
}

func (l failingLog) Append(ctx context.Context, entry ledger.Transaction) (ledger.Transaction, error) {
	return ledger.Transaction{}, l.err
}

func TestEngine_LogFailureRollsBack(t *testing.T) {
	errDisk := errors.New("disk full")
	base := memstore.New()
	engine := ledger.NewEngine(failingLogStore{Store: base, err: errDisk}, ledger.EngineConfig{})
	ctx := context.Background()
	a := openAccount(t, base, "ACC-A", "100")
	b := openAccount(t, base, "ACC-B", "0")

	if _, err := engine.Deposit(ctx, a, amount("10")); !errors.Is(err, errDisk) {
		t.Errorf("Expected deposit to fail with %v, got %v", errDisk, err)
	}
	if _, err := engine.Withdraw(ctx, a, amount("10")); !errors.Is(err, errDisk) {
		t.Errorf("Expected withdraw to fail with %v, got %v", errDisk, err)
	}
	_, err := engine.Transfer(ctx, a, b, amount("10"))
	if !errors.Is(err, errDisk) {
		t.Errorf("Expected transfer to fail with %v, got %v", errDisk, err)
	}
	if ledger.IsBusinessError(err) {
		t.Error("Expected log failure not to be a business error")
	}

	assertBalance(t, engine, a, "100")
	assertBalance(t, engine, b, "0")
	if n := logLen(t, base); n != 0 {
		t.Errorf("Expected empty log, got %d entries", n)
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	id := openAccount(t, store, "ACC-1", "10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Deposit(ctx, id, amount("1")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	assertBalance(t, engine, id, "10")
}

func TestEngine_ConcurrentDeposits(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	id := openAccount(t, store, "ACC-1", "0")

	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Deposit(ctx, id, amount("1.5")); err != nil {
				t.Errorf("Deposit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	assertBalance(t, engine, id, "150")
	if n := logLen(t, store); n != workers {
		t.Errorf("Expected %d transactions, got %d", workers, n)
	}
}

func TestEngine_ConcurrentOppositeTransfers(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	a := openAccount(t, store, "ACC-A", "1000")
	b := openAccount(t, store, "ACC-B", "1000")

	// 200 transfers of 1 each way can never drain either side.
	const rounds = 200
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := engine.Transfer(ctx, a, b, amount("1")); err != nil {
				t.Errorf("Transfer A->B failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := engine.Transfer(ctx, b, a, amount("1")); err != nil {
				t.Errorf("Transfer B->A failed: %v", err)
			}
		}()
	}
	wg.Wait()

	total := balanceOf(t, engine, a).Add(balanceOf(t, engine, b))
	if !total.Equal(amount("2000")) {
		t.Errorf("Expected total of 2000, got %s", total)
	}
	assertBalance(t, engine, a, "1000")
	assertBalance(t, engine, b, "1000")
	if n := logLen(t, store); n != 2*rounds {
		t.Errorf("Expected %d transactions, got %d", 2*rounds, n)
	}
}

func TestEngine_ConcurrentTransfersNeverOverdraw(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	a := openAccount(t, store, "ACC-A", "10")
	b := openAccount(t, store, "ACC-B", "0")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, a, b, amount("1"))
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case !errors.Is(err, ledger.ErrInsufficientFunds):
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// The source must keep a positive balance, so 9 of 10 units can move.
	if succeeded != 9 {
		t.Errorf("Expected 9 transfers to succeed, got %d", succeeded)
	}
	assertBalance(t, engine, a, "1")
	assertBalance(t, engine, b, "9")
}

func TestEngine_Reads(t *testing.T) {
	store := memstore.New()
	engine := ledger.NewEngine(store, ledger.EngineConfig{})
	ctx := context.Background()
	a := openAccount(t, store, "ACC-A", "100")
	b := openAccount(t, store, "ACC-B", "0")
	c := openAccount(t, store, "ACC-C", "0")

	view, err := engine.Account(ctx, a)
	if err != nil {
		t.Fatalf("Account failed: %v", err)
	}
	if view != (ledger.AccountView{ID: a, Owner: "alice", Number: "ACC-A"}) {
		t.Errorf("Unexpected view %+v", view)
	}

	targets, err := engine.TransferTargets(ctx, a)
	if err != nil {
		t.Fatalf("TransferTargets failed: %v", err)
	}
	if len(targets) != 2 || targets[0].ID != b || targets[1].ID != c {
		t.Errorf("Expected targets [%d %d], got %+v", b, c, targets)
	}

	if _, err := engine.Deposit(ctx, b, amount("5")); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := engine.Transfer(ctx, a, c, amount("7")); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	history, err := engine.History(ctx, a)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Kind != ledger.KindTransfer {
		t.Errorf("Expected one transfer in A's history, got %+v", history)
	}

	for _, read := range []func() error{
		func() error { _, err := engine.Account(ctx, 999); return err },
		func() error { _, err := engine.Balance(ctx, 999); return err },
		func() error { _, err := engine.TransferTargets(ctx, 999); return err },
		func() error { _, err := engine.History(ctx, 999); return err },
	} {
		if err := read(); !errors.Is(err, ledger.ErrAccountNotFound) {
			t.Errorf("Expected ErrAccountNotFound, got %v", err)
		}
	}
}

func TestEngine_RecordsOutcomes(t *testing.T) {
	store := memstore.New()
	collector := metricsmemory.NewCollector()
	engine := ledger.NewEngine(store, ledger.EngineConfig{Metrics: collector})
	ctx := context.Background()
	a := openAccount(t, store, "ACC-A", "100")
	b := openAccount(t, store, "ACC-B", "0")

	engine.Deposit(ctx, a, amount("1"))
	engine.Deposit(ctx, a, amount("-1"))
	engine.Transfer(ctx, a, b, amount("40"))
	engine.Transfer(ctx, a, b, amount("1000"))
	engine.Withdraw(ctx, 999, amount("1"))

	deposits := collector.Outcomes(ledger.OpDeposit)
	if deposits["ok"] != 1 || deposits["invalid_amount"] != 1 {
		t.Errorf("Unexpected deposit outcomes %v", deposits)
	}
	transfers := collector.Outcomes(ledger.OpTransfer)
	if transfers["ok"] != 1 || transfers["insufficient_funds"] != 1 {
		t.Errorf("Unexpected transfer outcomes %v", transfers)
	}
	withdrawals := collector.Outcomes(ledger.OpWithdraw)
	if withdrawals["account_not_found"] != 1 {
		t.Errorf("Unexpected withdraw outcomes %v", withdrawals)
	}
}
