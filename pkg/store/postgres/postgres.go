// Package postgres stores accounts, transactions and users in PostgreSQL
// through database/sql and lib/pq.
//
// Store.Atomic maps to one SQL transaction. AccountStore.Get issued inside it
// takes a row lock (SELECT ... FOR UPDATE) that is held until commit, so two
// ledgerd processes sharing a database still serialize on the same account.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ebank-ledger/pkg/ledger"

	"github.com/lib/pq"
	"go.uber.org/multierr"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "ledger",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN returns the lib/pq connection string for the config.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store is a PostgreSQL backed ledger.Store.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection and creates the
// schema when it is missing.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	return OpenDSN(ctx, cfg.DSN(), cfg)
}

// OpenDSN is Open with an explicit connection string. Pool settings are
// taken from cfg.
func OpenDSN(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database handle and creates the schema when it is missing.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}
	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL REFERENCES users(username),
			balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL CHECK (kind IN ('DEPOSIT', 'WITHDRAW', 'TRANSFER')),
			from_account BIGINT NOT NULL REFERENCES accounts(id),
			to_account BIGINT NOT NULL REFERENCES accounts(id),
			amount NUMERIC NOT NULL CHECK (amount > 0),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		)`,
		// Tables created with a fixed scale round sub-cent amounts.
		`ALTER TABLE accounts ALTER COLUMN balance TYPE NUMERIC`,
		`ALTER TABLE transactions ALTER COLUMN amount TYPE NUMERIC`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from_account ON transactions(from_account)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to_account ON transactions(to_account)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Accounts returns the account store outside any atomic scope.
func (s *Store) Accounts() ledger.AccountStore {
	return accounts{q: s.db}
}

// Transactions returns the transaction log outside any atomic scope.
func (s *Store) Transactions() ledger.TransactionLog {
	return transactions{q: s.db}
}

// Users returns the user directory backed by the users table.
func (s *Store) Users() *Users {
	return &Users{db: s.db}
}

// Atomic runs fn inside one SQL transaction. The transaction is committed
// when fn returns nil and rolled back otherwise.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(scope{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scope struct{ q *sql.Tx }

func (s scope) Accounts() ledger.AccountStore       { return accounts{q: s.q, forUpdate: true} }
func (s scope) Transactions() ledger.TransactionLog { return transactions{q: s.q} }

// mapError translates constraint violations into ledger rejections.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code.Name() {
	case "unique_violation":
		if pqErr.Constraint == "accounts_number_key" {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateExternalNumber, pqErr.Detail)
		}
	case "foreign_key_violation":
		if pqErr.Constraint == "accounts_owner_fkey" {
			return fmt.Errorf("%w: %s", ledger.ErrOwnerNotFound, pqErr.Detail)
		}
	case "check_violation":
		switch pqErr.Constraint {
		case "accounts_balance_check":
			return fmt.Errorf("%w: %s", ledger.ErrInsufficientFunds, pqErr.Message)
		case "transactions_amount_check":
			return fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, pqErr.Message)
		}
	}
	return err
}
