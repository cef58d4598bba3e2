package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ebank-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

func TestStore_SaveAssignsIDs(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.Accounts().Save(ctx, ledger.Account{Number: "ACC-1", Owner: "alice"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second, err := store.Accounts().Save(ctx, ledger.Account{Number: "ACC-2", Owner: "bob"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("Expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}

	got, err := store.Accounts().GetByNumber(ctx, "ACC-2")
	if err != nil {
		t.Fatalf("GetByNumber failed: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("Expected id %d, got %d", second.ID, got.ID)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Accounts().Get(ctx, 42); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
	if _, err := store.Accounts().GetByNumber(ctx, "nope"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestStore_UpdateUnknownAccount(t *testing.T) {
	store := New()

	_, err := store.Accounts().Save(context.Background(), ledger.Account{ID: 7, Number: "X"})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestStore_DuplicateNumber(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Accounts().Save(ctx, ledger.Account{Number: "ACC-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err := store.Accounts().Save(ctx, ledger.Account{Number: "ACC-1"})
	if !errors.Is(err, ledger.ErrDuplicateExternalNumber) {
		t.Errorf("Expected ErrDuplicateExternalNumber, got %v", err)
	}

	// Inside one scope as well.
	err = store.Atomic(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Accounts().Save(ctx, ledger.Account{Number: "ACC-9"}); err != nil {
			return err
		}
		_, err := tx.Accounts().Save(ctx, ledger.Account{Number: "ACC-9"})
		return err
	})
	if !errors.Is(err, ledger.ErrDuplicateExternalNumber) {
		t.Errorf("Expected ErrDuplicateExternalNumber, got %v", err)
	}

	if accounts, _ := store.Len(); accounts != 1 {
		t.Errorf("Expected 1 account, got %d", accounts)
	}
}

func TestStore_AtomicRollback(t *testing.T) {
	store := New()
	ctx := context.Background()

	account, err := store.Accounts().Save(ctx, ledger.Account{Number: "ACC-1", Balance: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	boom := errors.New("boom")
	err = store.Atomic(ctx, func(tx ledger.Tx) error {
		account.Balance = decimal.NewFromInt(99)
		if _, err := tx.Accounts().Save(ctx, account); err != nil {
			return err
		}
		if _, err := tx.Transactions().Append(ctx, ledger.Transaction{Kind: ledger.KindDeposit, From: account.ID, To: account.ID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	got, _ := store.Accounts().Get(ctx, account.ID)
	if !got.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected balance 10 after rollback, got %s", got.Balance)
	}
	if _, txs := store.Len(); txs != 0 {
		t.Errorf("Expected no transactions after rollback, got %d", txs)
	}
}

func TestStore_AtomicReadsOwnWrites(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.Atomic(ctx, func(tx ledger.Tx) error {
		saved, err := tx.Accounts().Save(ctx, ledger.Account{Number: "ACC-1"})
		if err != nil {
			return err
		}

		if _, err := store.Accounts().Get(ctx, saved.ID); !errors.Is(err, ledger.ErrAccountNotFound) {
			t.Errorf("Uncommitted account should not be visible outside the scope, got %v", err)
		}

		got, err := tx.Accounts().GetByNumber(ctx, "ACC-1")
		if err != nil {
			return err
		}
		if got.ID != saved.ID {
			t.Errorf("Expected id %d, got %d", saved.ID, got.ID)
		}

		if _, err := tx.Transactions().Append(ctx, ledger.Transaction{Kind: ledger.KindDeposit, From: saved.ID, To: saved.ID}); err != nil {
			return err
		}
		history, err := tx.Transactions().ListByAccount(ctx, saved.ID)
		if err != nil {
			return err
		}
		if len(history) != 1 {
			t.Errorf("Expected 1 staged transaction, got %d", len(history))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic failed: %v", err)
	}
}

func TestStore_AtomicCanceledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := store.Atomic(ctx, func(tx ledger.Tx) error {
		_, err := tx.Accounts().Save(ctx, ledger.Account{Number: "ACC-1"})
		cancel()
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if accounts, _ := store.Len(); accounts != 0 {
		t.Errorf("Expected nothing committed, got %d accounts", accounts)
	}
}

func TestStore_ListExcluding(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, n := range []string{"A", "B", "C"} {
		if _, err := store.Accounts().Save(ctx, ledger.Account{Number: n}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	others, err := store.Accounts().ListExcluding(ctx, 2)
	if err != nil {
		t.Fatalf("ListExcluding failed: %v", err)
	}
	if len(others) != 2 || others[0].ID != 1 || others[1].ID != 3 {
		t.Errorf("Expected accounts 1 and 3, got %+v", others)
	}
}

func TestStore_ListByAccount(t *testing.T) {
	store := New()
	ctx := context.Background()

	entries := []ledger.Transaction{
		{Kind: ledger.KindDeposit, From: 1, To: 1},
		{Kind: ledger.KindTransfer, From: 1, To: 2},
		{Kind: ledger.KindDeposit, From: 3, To: 3},
		{Kind: ledger.KindTransfer, From: 2, To: 1},
	}
	for _, e := range entries {
		if _, err := store.Transactions().Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	history, err := store.Transactions().ListByAccount(ctx, 1)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i-1].ID >= history[i].ID {
			t.Errorf("History not ordered by id: %+v", history)
		}
	}
	for _, e := range history {
		if e.CreatedAt.IsZero() {
			t.Errorf("Transaction %d has no timestamp", e.ID)
		}
	}
}

func TestStore_ConcurrentInsertSameNumber(t *testing.T) {
	store := New()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Accounts().Save(ctx, ledger.Account{Number: "SAME"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("Expected exactly 1 account, got %d", created)
	}
}

func TestStore_AppendRejectsUnknownKind(t *testing.T) {
	store := New()

	_, err := store.Transactions().Append(context.Background(), ledger.Transaction{
		Kind:   "REFUND",
		From:   1,
		To:     1,
		Amount: decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("Expected error for unknown kind")
	}
	if _, n := store.Len(); n != 0 {
		t.Errorf("Expected empty log, got %d entries", n)
	}
}
