package postgres

import (
	"context"
	"fmt"

	"ebank-ledger/pkg/ledger"
)

type transactions struct {
	q querier
}

func (t transactions) Append(ctx context.Context, entry ledger.Transaction) (ledger.Transaction, error) {
	if !entry.Kind.Valid() {
		return ledger.Transaction{}, fmt.Errorf("append transaction: unknown kind %q", entry.Kind)
	}

	err := t.q.QueryRowContext(ctx,
		`INSERT INTO transactions (kind, from_account, to_account, amount)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		string(entry.Kind), entry.From, entry.To, entry.Amount,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, mapError(fmt.Errorf("append transaction: %w", err))
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

func (t transactions) ListByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, kind, from_account, to_account, amount, created_at
		 FROM transactions
		 WHERE from_account = $1 OR to_account = $1
		 ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.Transaction, 0)
	for rows.Next() {
		var (
			e    ledger.Transaction
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.From, &e.To, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		e.Kind = ledger.Kind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
