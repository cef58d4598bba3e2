// Package ledger holds account balances and the append-only record of every
// money movement that changed them.
//
// Balances are mutated only by Engine. Each successful Deposit, Withdraw or
// Transfer commits its balance changes and exactly one Transaction inside a
// single Store.Atomic scope, so readers never observe one without the other.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the type of money movement a Transaction records.
type Kind string

const (
	// KindDeposit credits an account from an external source.
	KindDeposit Kind = "DEPOSIT"
	// KindWithdraw debits an account to an external sink.
	KindWithdraw Kind = "WITHDRAW"
	// KindTransfer moves funds between two accounts of the ledger.
	KindTransfer Kind = "TRANSFER"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindTransfer:
		return true
	default:
		return false
	}
}

// Account is a balance holder bound to a user and an external number.
type Account struct {
	// ID is assigned by the AccountStore on first save and never changes.
	ID int64 `json:"id"`

	// Number is the unique, human facing account number (IBAN-like).
	Number string `json:"number"`

	// Owner is the username of the user the account belongs to.
	Owner string `json:"owner"`

	// Balance is never negative after a committed operation.
	Balance decimal.Decimal `json:"balance"`
}

// View returns the public projection of the account.
func (a Account) View() AccountView {
	return AccountView{ID: a.ID, Owner: a.Owner, Number: a.Number}
}

// AccountView is the display projection of an account. None of its fields
// change after the account is created.
type AccountView struct {
	ID     int64  `json:"id"`
	Owner  string `json:"owner"`
	Number string `json:"number"`
}

// Transaction is an immutable record of one committed money movement.
// For deposits and withdrawals From and To hold the same account id.
type Transaction struct {
	ID        int64           `json:"id"`
	Kind      Kind            `json:"kind"`
	From      int64           `json:"from"`
	To        int64           `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Touches reports whether the transaction debits or credits accountID.
func (t Transaction) Touches(accountID int64) bool {
	return t.From == accountID || t.To == accountID
}

// User is an entry of the user directory.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
