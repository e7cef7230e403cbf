package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when creating an account with a taken username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUnauthorized is returned when a non-privileged identity attempts a privileged action.
	ErrUnauthorized = core.ErrUnauthorized
	// ErrInvalidTheme is returned for theme values other than light and dark.
	ErrInvalidTheme = fmt.Errorf("invalid theme: %w", core.ErrInvalidEnum)
)

// Usernames double as identity ids and are embedded in private room ids,
// so the separator "_" is not allowed.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.\-]{2,31}$`)

// NewAccount is the input of account creation.
type NewAccount struct {
	Username     string
	Password     string
	DisplayName  string
	IsPrivileged bool
}

// Service provides authentication operations.
type Service struct {
	store     store.AccountStore
	jwtConfig *JWTConfig
	onCreate  func(*store.Account)
}

// NewService creates a new authentication service.
func NewService(accounts store.AccountStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     accounts,
		jwtConfig: jwtConfig,
	}
}

// OnAccountCreated registers a hook run after every successful account creation.
func (s *Service) OnAccountCreated(fn func(*store.Account)) {
	s.onCreate = fn
}

// Login validates credentials and returns a session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.Account, error) {
	acct, err := s.store.GetAccount(ctx, strings.TrimSpace(username))
	if err != nil {
		burnCompare(password)
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get account: %w", err)
	}

	if errPwd := ComparePassword(acct.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, acct.Username, acct.DisplayName, acct.IsPrivileged)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, acct, nil
}

// ValidateToken validates a session token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// CreateIdentity creates an account on behalf of requester, who must be privileged.
func (s *Service) CreateIdentity(ctx context.Context, requester string, in NewAccount) (*store.Account, error) {
	caller, err := s.store.GetAccount(ctx, requester)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get requester: %w", err)
	}
	if !caller.IsPrivileged {
		return nil, ErrUnauthorized
	}
	return s.Bootstrap(ctx, in)
}

// Bootstrap creates an account without a privilege check. Used by the useradd command.
func (s *Service) Bootstrap(ctx context.Context, in NewAccount) (*store.Account, error) {
	username := strings.TrimSpace(in.Username)
	if !usernameRe.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if len(in.Password) < 6 {
		return nil, ErrInvalidPassword
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = username
	}
	acct, err := s.store.CreateAccount(ctx, &store.Account{
		Username:     username,
		PasswordHash: hashed,
		DisplayName:  display,
		IsPrivileged: in.IsPrivileged,
		Theme:        store.ThemeLight,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if s.onCreate != nil {
		s.onCreate(acct)
	}
	return acct, nil
}

// Account returns the stored account of identity.
func (s *Service) Account(ctx context.Context, identity string) (*store.Account, error) {
	acct, err := s.store.GetAccount(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// UpdateTheme stores a theme preference for identity.
func (s *Service) UpdateTheme(ctx context.Context, identity, theme string) (store.Theme, error) {
	t := store.Theme(strings.ToLower(strings.TrimSpace(theme)))
	if !t.Valid() {
		return "", ErrInvalidTheme
	}
	if err := s.store.UpdateTheme(ctx, identity, t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", core.ErrNotFound
		}
		return "", fmt.Errorf("update theme: %w", err)
	}
	return t, nil
}
