package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ebank-ledger/pkg/ledger"
)

const accountColumns = `id, number, owner, balance`

type accounts struct {
	q         querier
	forUpdate bool
}

func (a accounts) Get(ctx context.Context, id int64) (ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if a.forUpdate {
		query += ` FOR UPDATE`
	}

	account, err := scanAccount(a.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, id)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	return account, nil
}

func (a accounts) GetByNumber(ctx context.Context, number string) (ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE number = $1`

	account, err := scanAccount(a.q.QueryRowContext(ctx, query, number))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: number %s", ledger.ErrAccountNotFound, number)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("get account %s: %w", number, err)
	}
	return account, nil
}

func (a accounts) Save(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	if account.ID == 0 {
		err := a.q.QueryRowContext(ctx,
			`INSERT INTO accounts (number, owner, balance) VALUES ($1, $2, $3) RETURNING id`,
			account.Number, account.Owner, account.Balance,
		).Scan(&account.ID)
		if err != nil {
			return ledger.Account{}, mapError(fmt.Errorf("insert account: %w", err))
		}
		return account, nil
	}

	result, err := a.q.ExecContext(ctx,
		`UPDATE accounts SET number = $1, owner = $2, balance = $3 WHERE id = $4`,
		account.Number, account.Owner, account.Balance, account.ID,
	)
	if err != nil {
		return ledger.Account{}, mapError(fmt.Errorf("update account %d: %w", account.ID, err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ledger.Account{}, fmt.Errorf("update account %d: %w", account.ID, err)
	}
	if rows == 0 {
		return ledger.Account{}, fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, account.ID)
	}
	return account, nil
}

func (a accounts) ListExcluding(ctx context.Context, id int64) ([]ledger.Account, error) {
	rows, err := a.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id <> $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.ID, &a.Number, &a.Owner, &a.Balance)
	return a, err
}
