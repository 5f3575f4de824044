// Package accounts holds the local user database used by the localfs backend.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("account not found")
	ErrAlreadyExists   = errors.New("account already exists")
	ErrAccountDisabled = errors.New("account is disabled")
	ErrInvalidUsername = errors.New("invalid username")
)

// MaxUsernameLength bounds usernames in every store.
const MaxUsernameLength = 64

// Account is a local user. PasswordHash is a bcrypt hash; plaintext passwords
// are never stored.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Home         string    `json:"home,omitempty"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists accounts.
type Store interface {
	Get(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]*Account, error)
	Close() error
}

// ValidateUsername rejects names that could not come out of the credential
// normalizer or that would escape a home directory.
func ValidateUsername(username string) error {
	switch {
	case username == "", len(username) > MaxUsernameLength:
		return ErrInvalidUsername
	case username == "." || username == "..":
		return ErrInvalidUsername
	case strings.ContainsAny(username, "@/\\\x00"):
		return ErrInvalidUsername
	}
	return nil
}

// HomeDir returns the directory, relative to the backend root, that the
// account is confined to.
func (a *Account) HomeDir() string {
	if a.Home != "" {
		return a.Home
	}
	return a.Username
}
