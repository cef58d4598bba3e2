package ledger

import "context"

// AccountStore is the persistence boundary for accounts. It performs no
// business validation beyond keeping external numbers unique.
type AccountStore interface {
	// Get returns the account with the given id or ErrAccountNotFound.
	// Inside Store.Atomic the backend locks the row for the rest of the scope
	// when it supports row locks.
	Get(ctx context.Context, id int64) (Account, error)

	// GetByNumber returns the account with the given external number or
	// ErrAccountNotFound.
	GetByNumber(ctx context.Context, number string) (Account, error)

	// Save inserts the account when its ID is zero and updates it otherwise.
	// It returns the stored account with its assigned ID.
	Save(ctx context.Context, account Account) (Account, error)

	// ListExcluding returns every account except id, ordered by id.
	ListExcluding(ctx context.Context, id int64) ([]Account, error)
}

// TransactionLog is the append-only record of committed money movements.
type TransactionLog interface {
	// Append assigns ID and CreatedAt and persists the transaction.
	Append(ctx context.Context, tx Transaction) (Transaction, error)

	// ListByAccount returns every transaction touching accountID, ordered by id.
	ListByAccount(ctx context.Context, accountID int64) ([]Transaction, error)
}

// Tx is the view of the store inside one atomic scope.
type Tx interface {
	Accounts() AccountStore
	Transactions() TransactionLog
}

// Store groups the account store and the transaction log behind one atomic
// commit boundary.
type Store interface {
	Accounts() AccountStore
	Transactions() TransactionLog

	// Atomic runs fn inside a unit of work. Writes made through the Tx become
	// visible all together when fn returns nil and the commit succeeds;
	// otherwise none of them do.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// UserDirectory resolves users by username.
type UserDirectory interface {
	// FindByUsername returns the user or an error wrapping ErrOwnerNotFound.
	FindByUsername(ctx context.Context, username string) (User, error)
}
