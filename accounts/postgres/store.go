package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/accounts"
	corelog "github.com/ebogdum/davgate/core/log"
)

const uniqueViolation = "23505"

// Store implements accounts.Store using PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ accounts.Store = (*Store)(nil)

// NewStore opens dsn, verifies the connection and applies migrations.
func NewStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewStoreFromDB(db, logger), nil
}

// NewStoreFromDB wraps an already opened database without running migrations.
func NewStoreFromDB(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.Named("accounts.postgres")}
}

func scanAccount(row interface{ Scan(...any) error }) (*accounts.Account, error) {
	var a accounts.Account
	if err := row.Scan(&a.Username, &a.PasswordHash, &a.Home, &a.Disabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Get returns the account for username.
func (s *Store) Get(ctx context.Context, username string) (*accounts.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, _SQL_GET_ACCOUNT, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// Create inserts a new account.
func (s *Store) Create(ctx context.Context, a *accounts.Account) error {
	if err := accounts.ValidateUsername(a.Username); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, _SQL_CREATE_ACCOUNT,
		a.Username, a.PasswordHash, a.Home, a.Disabled, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return accounts.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created", corelog.User(a.Username))
	return nil
}

// Update replaces the mutable fields of an existing account.
func (s *Store) Update(ctx context.Context, a *accounts.Account) error {
	a.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, _SQL_UPDATE_ACCOUNT,
		a.PasswordHash, a.Home, a.Disabled, a.UpdatedAt, a.Username)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireOneRow(res)
}

// Delete removes the account for username.
func (s *Store) Delete(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, _SQL_DELETE_ACCOUNT, username)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := requireOneRow(res); err != nil {
		return err
	}

	s.logger.Info("Account deleted", corelog.User(username))
	return nil
}

// List returns all accounts ordered by username.
func (s *Store) List(ctx context.Context) ([]*accounts.Account, error) {
	rows, err := s.db.QueryContext(ctx, _SQL_LIST_ACCOUNTS)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*accounts.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return accounts.ErrNotFound
	}
	return nil
}
