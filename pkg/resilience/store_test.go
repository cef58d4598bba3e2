package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/metrics"
	"ebank-ledger/pkg/store/memory"

	"github.com/shopspring/decimal"
)

// flakyStore fails every Atomic call with err while it is set.
type flakyStore struct {
	ledger.Store
	err error
}

func (f *flakyStore) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return f.Store.Atomic(ctx, fn)
}

func storeConfig(failures uint32) StoreConfig {
	return StoreConfig{
		Name:       "test-store",
		Resilience: aggressiveConfig(time.Second, failures),
	}
}

func TestStore_PassesThrough(t *testing.T) {
	guarded := NewStore(memory.New(), storeConfig(3))
	ctx := context.Background()

	saved, err := guarded.Accounts().Save(ctx, ledger.Account{Number: "ACC-1", Owner: "alice"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	err = guarded.Atomic(ctx, func(tx ledger.Tx) error {
		account, err := tx.Accounts().Get(ctx, saved.ID)
		if err != nil {
			return err
		}
		account.Balance = decimal.NewFromInt(10)
		_, err = tx.Accounts().Save(ctx, account)
		return err
	})
	if err != nil {
		t.Fatalf("Atomic failed: %v", err)
	}

	got, err := guarded.Accounts().Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected balance 10, got %s", got.Balance)
	}

	if _, err := guarded.Transactions().ListByAccount(ctx, saved.ID); err != nil {
		t.Errorf("ListByAccount failed: %v", err)
	}
}

func TestStore_BusinessErrorsDoNotTrip(t *testing.T) {
	guarded := NewStore(memory.New(), storeConfig(2))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := guarded.Accounts().Get(ctx, 404)
		if !errors.Is(err, ledger.ErrAccountNotFound) {
			t.Fatalf("Call %d: expected ErrAccountNotFound, got %v", i+1, err)
		}
	}

	err := guarded.Atomic(ctx, func(tx ledger.Tx) error {
		return ledger.ErrInsufficientFunds
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	if guarded.State() != metrics.CircuitClosed {
		t.Errorf("Expected closed circuit, got %v", guarded.State())
	}
}

func TestStore_InfrastructureErrorsTrip(t *testing.T) {
	flaky := &flakyStore{Store: memory.New(), err: errors.New("connection reset by peer")}
	guarded := NewStore(flaky, storeConfig(3))
	ctx := context.Background()
	noop := func(tx ledger.Tx) error { return nil }

	for i := 0; i < 3; i++ {
		if err := guarded.Atomic(ctx, noop); IsCircuitOpen(err) {
			t.Fatalf("Circuit opened too early at call %d", i+1)
		}
	}

	flaky.err = nil
	if err := guarded.Atomic(ctx, noop); !IsCircuitOpen(err) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if guarded.State() != metrics.CircuitOpen {
		t.Errorf("Expected open circuit, got %v", guarded.State())
	}
}

func TestStore_Timeout(t *testing.T) {
	guarded := NewStore(memory.New(), StoreConfig{
		Resilience: aggressiveConfig(20*time.Millisecond, 100),
	})

	err := guarded.Atomic(context.Background(), func(tx ledger.Tx) error {
		time.Sleep(50 * time.Millisecond)
		_, err := tx.Accounts().Save(context.Background(), ledger.Account{Number: "LATE"})
		return err
	})
	if !IsTimeout(err) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}

	if _, err := guarded.Accounts().GetByNumber(context.Background(), "LATE"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Timed out scope must not commit, got %v", err)
	}
}

func TestStore_LateRejectionIsNotTimeout(t *testing.T) {
	guarded := NewStore(memory.New(), StoreConfig{
		Resilience: aggressiveConfig(20*time.Millisecond, 100),
	})

	err := guarded.Atomic(context.Background(), func(tx ledger.Tx) error {
		time.Sleep(50 * time.Millisecond)
		return ledger.ErrInsufficientFunds
	})
	if IsTimeout(err) {
		t.Fatalf("Expected the rejection, got timeout %v", err)
	}
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
}

func TestStore_DefaultsApplied(t *testing.T) {
	guarded := NewStore(memory.New(), StoreConfig{})
	if guarded.guard.name != "store" {
		t.Errorf("Expected default name 'store', got %q", guarded.guard.name)
	}
	if guarded.guard.timeout != DefaultStoreConfig().Timeout {
		t.Errorf("Expected default timeout, got %v", guarded.guard.timeout)
	}
}
