// Package memory keeps accounts, transactions and users in process memory.
//
// Writes made inside Store.Atomic are staged and applied under the store
// mutex in one step, so concurrent readers see either all of them or none.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"ebank-ledger/pkg/ledger"
)

// Store is an in-memory ledger.Store.
type Store struct {
	mu       sync.RWMutex
	accounts map[int64]ledger.Account
	byNumber map[string]int64
	entries  []ledger.Transaction

	nextAccountID atomic.Int64
	nextTxID      atomic.Int64

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]ledger.Account),
		byNumber: make(map[string]int64),
		now:      time.Now,
	}
}

// Accounts returns the account store outside any atomic scope. Each Save is
// committed on its own.
func (s *Store) Accounts() ledger.AccountStore {
	return committedAccounts{s}
}

// Transactions returns the transaction log outside any atomic scope.
func (s *Store) Transactions() ledger.TransactionLog {
	return committedLog{s}
}

// Atomic runs fn against a staging area and applies the staged writes when fn
// succeeds and ctx is still live.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &stagedTx{
		store:    s,
		accounts: make(map[int64]ledger.Account),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

// Len returns the number of stored accounts and transactions.
func (s *Store) Len() (accounts, transactions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), len(s.entries)
}

func (s *Store) commit(tx *stagedTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching anything.
	for _, id := range tx.order {
		a := tx.accounts[id]
		if owner, ok := s.byNumber[a.Number]; ok && owner != a.ID {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateExternalNumber, a.Number)
		}
	}

	for _, id := range tx.order {
		a := tx.accounts[id]
		if prev, ok := s.accounts[id]; ok && prev.Number != a.Number {
			delete(s.byNumber, prev.Number)
		}
		s.accounts[id] = a
		s.byNumber[a.Number] = id
	}
	s.entries = append(s.entries, tx.entries...)
	return nil
}

func (s *Store) get(id int64) (ledger.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *Store) getByNumber(number string) (ledger.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[number]
	if !ok {
		return ledger.Account{}, false
	}
	return s.accounts[id], true
}

func (s *Store) snapshot() []ledger.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out
}

// stagedTx buffers the writes of one atomic scope.
type stagedTx struct {
	store    *Store
	accounts map[int64]ledger.Account
	order    []int64
	entries  []ledger.Transaction
}

func (tx *stagedTx) Accounts() ledger.AccountStore       { return stagedAccounts{tx} }
func (tx *stagedTx) Transactions() ledger.TransactionLog { return stagedLog{tx} }

type stagedAccounts struct{ tx *stagedTx }

func (a stagedAccounts) Get(ctx context.Context, id int64) (ledger.Account, error) {
	if acc, ok := a.tx.accounts[id]; ok {
		return acc, nil
	}
	if acc, ok := a.tx.store.get(id); ok {
		return acc, nil
	}
	return ledger.Account{}, fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, id)
}

func (a stagedAccounts) GetByNumber(ctx context.Context, number string) (ledger.Account, error) {
	for _, acc := range a.tx.accounts {
		if acc.Number == number {
			return acc, nil
		}
	}
	if acc, ok := a.tx.store.getByNumber(number); ok {
		if staged, ok := a.tx.accounts[acc.ID]; ok && staged.Number != number {
			return ledger.Account{}, fmt.Errorf("%w: number %s", ledger.ErrAccountNotFound, number)
		}
		return acc, nil
	}
	return ledger.Account{}, fmt.Errorf("%w: number %s", ledger.ErrAccountNotFound, number)
}

func (a stagedAccounts) Save(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	for id, staged := range a.tx.accounts {
		if id != account.ID && staged.Number == account.Number {
			return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateExternalNumber, account.Number)
		}
	}

	if account.ID == 0 {
		account.ID = a.tx.store.nextAccountID.Add(1)
	} else if _, err := a.Get(ctx, account.ID); err != nil {
		return ledger.Account{}, err
	}

	if _, seen := a.tx.accounts[account.ID]; !seen {
		a.tx.order = append(a.tx.order, account.ID)
	}
	a.tx.accounts[account.ID] = account
	return account, nil
}

func (a stagedAccounts) ListExcluding(ctx context.Context, id int64) ([]ledger.Account, error) {
	merged := make(map[int64]ledger.Account)
	for _, acc := range a.tx.store.snapshot() {
		merged[acc.ID] = acc
	}
	for accID, acc := range a.tx.accounts {
		merged[accID] = acc
	}
	return sortedExcluding(merged, id), nil
}

type stagedLog struct{ tx *stagedTx }

func (l stagedLog) Append(ctx context.Context, entry ledger.Transaction) (ledger.Transaction, error) {
	if !entry.Kind.Valid() {
		return ledger.Transaction{}, fmt.Errorf("append transaction: unknown kind %q", entry.Kind)
	}
	entry.ID = l.tx.store.nextTxID.Add(1)
	entry.CreatedAt = l.tx.store.now().UTC()
	l.tx.entries = append(l.tx.entries, entry)
	return entry, nil
}

func (l stagedLog) ListByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	out, err := committedLog{l.tx.store}.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, e := range l.tx.entries {
		if e.Touches(accountID) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, byTransactionID)
	return out, nil
}

// committedAccounts reads committed state and commits each Save on its own.
type committedAccounts struct{ s *Store }

func (a committedAccounts) Get(ctx context.Context, id int64) (ledger.Account, error) {
	if acc, ok := a.s.get(id); ok {
		return acc, nil
	}
	return ledger.Account{}, fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, id)
}

func (a committedAccounts) GetByNumber(ctx context.Context, number string) (ledger.Account, error) {
	if acc, ok := a.s.getByNumber(number); ok {
		return acc, nil
	}
	return ledger.Account{}, fmt.Errorf("%w: number %s", ledger.ErrAccountNotFound, number)
}

func (a committedAccounts) Save(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	var saved ledger.Account
	err := a.s.Atomic(ctx, func(tx ledger.Tx) error {
		var err error
		saved, err = tx.Accounts().Save(ctx, account)
		return err
	})
	return saved, err
}

func (a committedAccounts) ListExcluding(ctx context.Context, id int64) ([]ledger.Account, error) {
	all := make(map[int64]ledger.Account)
	for _, acc := range a.s.snapshot() {
		all[acc.ID] = acc
	}
	return sortedExcluding(all, id), nil
}

type committedLog struct{ s *Store }

func (l committedLog) Append(ctx context.Context, entry ledger.Transaction) (ledger.Transaction, error) {
	var appended ledger.Transaction
	err := l.s.Atomic(ctx, func(tx ledger.Tx) error {
		var err error
		appended, err = tx.Transactions().Append(ctx, entry)
		return err
	})
	return appended, err
}

func (l committedLog) ListByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	l.s.mu.RLock()
	out := make([]ledger.Transaction, 0)
	for _, e := range l.s.entries {
		if e.Touches(accountID) {
			out = append(out, e)
		}
	}
	l.s.mu.RUnlock()

	// Commits may land out of id order when scopes overlap.
	slices.SortFunc(out, byTransactionID)
	return out, nil
}

func sortedExcluding(accounts map[int64]ledger.Account, excluded int64) []ledger.Account {
	out := make([]ledger.Account, 0, len(accounts))
	for id, acc := range accounts {
		if id != excluded {
			out = append(out, acc)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Account) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func byTransactionID(a, b ledger.Transaction) int {
	return cmp.Compare(a.ID, b.ID)
}
