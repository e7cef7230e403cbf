package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
)

// Theme is the UI theme an account prefers.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a supported theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Account is a login-capable identity.
type Account struct {
	Username     string
	PasswordHash string
	DisplayName  string
	IsPrivileged bool
	Theme        Theme
	CreatedAt    time.Time
}

// AccountStore handles account persistence.
type AccountStore interface {
	// CreateAccount inserts a new account. Returns ErrDuplicate if the username is taken.
	CreateAccount(ctx context.Context, acct *Account) (*Account, error)

	// GetAccount retrieves an account by username.
	GetAccount(ctx context.Context, username string) (*Account, error)

	// ListAccounts returns every account ordered by username.
	ListAccounts(ctx context.Context) ([]*Account, error)

	// UpdateTheme stores the account's theme preference.
	UpdateTheme(ctx context.Context, username string, theme Theme) error
}

// Store aggregates all storage interfaces.
type Store interface {
	AccountStore

	// Close closes the underlying database connection.
	Close() error
}
