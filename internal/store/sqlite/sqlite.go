package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/parley/internal/store"
)

// Schema is applied by New on every start; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	is_privileged BOOLEAN NOT NULL DEFAULT 0,
	theme         TEXT NOT NULL DEFAULT 'light',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateAccount inserts a new account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, acct *store.Account) (*store.Account, error) {
	theme := acct.Theme
	if !theme.Valid() {
		theme = store.ThemeLight
	}

	query := `
		INSERT INTO accounts (username, password_hash, display_name, is_privileged, theme)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, acct.Username, acct.PasswordHash, acct.DisplayName, acct.IsPrivileged, string(theme))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("insert account %q: %w", acct.Username, store.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	return s.GetAccount(ctx, acct.Username)
}

// GetAccount retrieves an account by username.
func (s *SQLiteStore) GetAccount(ctx context.Context, username string) (*store.Account, error) {
	query := `
		SELECT username, password_hash, display_name, is_privileged, theme, created_at
		FROM accounts
		WHERE username = ?
	`
	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return acct, nil
}

// ListAccounts returns every account ordered by username.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*store.Account, error) {
	query := `
		SELECT username, password_hash, display_name, is_privileged, theme, created_at
		FROM accounts
		ORDER BY username ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*store.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// UpdateTheme stores the account's theme preference.
func (s *SQLiteStore) UpdateTheme(ctx context.Context, username string, theme store.Theme) error {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET theme = ? WHERE username = ?`, string(theme), username)
	if err != nil {
		return fmt.Errorf("update theme: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %q: %w", username, store.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*store.Account, error) {
	var (
		acct  store.Account
		theme string
	)
	if err := row.Scan(
		&acct.Username,
		&acct.PasswordHash,
		&acct.DisplayName,
		&acct.IsPrivileged,
		&theme,
		&acct.CreatedAt,
	); err != nil {
		return nil, err
	}
	acct.Theme = store.Theme(theme)
	return &acct, nil
}

var _ store.Store = (*SQLiteStore)(nil)
