package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/davgate/accounts"
	corelog "github.com/ebogdum/davgate/core/log"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ accounts.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger.Named("accounts.sqlite")}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS accounts (
    username TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    home TEXT NOT NULL DEFAULT '',
    disabled INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

func scanAccount(row interface{ Scan(...any) error }) (*accounts.Account, error) {
	var a accounts.Account
	var createdAt, updatedAt string
	if err := row.Scan(&a.Username, &a.PasswordHash, &a.Home, &a.Disabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTimestamp(createdAt)
	a.UpdatedAt = parseTimestamp(updatedAt)
	return &a, nil
}

func (s *SQLiteStore) Get(ctx context.Context, username string) (*accounts.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, home, disabled, created_at, updated_at
		FROM accounts
		WHERE username = ?`, username)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) Create(ctx context.Context, a *accounts.Account) error {
	if err := accounts.ValidateUsername(a.Username); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, password_hash, home, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Username,
		a.PasswordHash,
		a.Home,
		a.Disabled,
		a.CreatedAt.Format(time.RFC3339Nano),
		a.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: accounts.username") {
			return accounts.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created", corelog.User(a.Username))
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, a *accounts.Account) error {
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = ?, home = ?, disabled = ?, updated_at = ?
		WHERE username = ?`,
		a.PasswordHash,
		a.Home,
		a.Disabled,
		a.UpdatedAt.Format(time.RFC3339Nano),
		a.Username,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireOneRow(result)
}

func (s *SQLiteStore) Delete(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}

	s.logger.Info("Account deleted", corelog.User(username))
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*accounts.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, home, disabled, created_at, updated_at
		FROM accounts
		ORDER BY username ASC`)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
