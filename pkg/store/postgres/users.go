package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ebank-ledger/pkg/ledger"

	"github.com/lib/pq"
)

// Users is a ledger.UserDirectory over the users table.
type Users struct {
	db *sql.DB
}

// Add inserts a user and returns it with its assigned id.
func (u *Users) Add(ctx context.Context, username, email string) (ledger.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return ledger.User{}, ledger.ErrInvalidUsername
	}

	user := ledger.User{Username: username, Email: strings.TrimSpace(email)}
	err := u.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email) VALUES ($1, $2) RETURNING id`,
		user.Username, user.Email,
	).Scan(&user.ID)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ledger.User{}, fmt.Errorf("%w: %s", ledger.ErrUserExists, username)
	}
	if err != nil {
		return ledger.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// FindByUsername implements ledger.UserDirectory.
func (u *Users) FindByUsername(ctx context.Context, username string) (ledger.User, error) {
	var user ledger.User
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE username = $1`, username,
	).Scan(&user.ID, &user.Username, &user.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, fmt.Errorf("%w: %s", ledger.ErrOwnerNotFound, username)
	}
	if err != nil {
		return ledger.User{}, fmt.Errorf("find user %s: %w", username, err)
	}
	return user, nil
}
