package localfs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/davgate/accounts"
	"github.com/ebogdum/davgate/auth"
	corelog "github.com/ebogdum/davgate/core/log"
	"github.com/ebogdum/davgate/internal/pathutil"
	"github.com/ebogdum/davgate/session"
)

const backendName = "localfs"

// Authenticator checks credentials against an accounts.Store and hands out
// storage confined to the account's home directory under root.
type Authenticator struct {
	root   string
	store  accounts.Store
	logger *zap.Logger
}

var _ auth.BackendAuthenticator = (*Authenticator)(nil)

func NewAuthenticator(root string, store accounts.Store, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{root: root, store: store, logger: logger.Named(backendName)}
}

func (a *Authenticator) Name() string {
	return backendName
}

func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*session.Descriptor, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: empty credentials", auth.ErrAuthenticationFailed)
	}

	account, err := a.store.Get(ctx, username)
	if errors.Is(err, accounts.ErrNotFound) {
		accounts.BurnPasswordCheck(password)
		return nil, fmt.Errorf("%w: unknown user", auth.ErrAuthenticationFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: account lookup: %v", auth.ErrBackendUnavailable, err)
	}

	if !accounts.VerifyPassword(account.PasswordHash, password) {
		return nil, fmt.Errorf("%w: wrong password", auth.ErrAuthenticationFailed)
	}
	// Checked after the password so a disabled account is not revealed to guessers.
	if account.Disabled {
		return nil, fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, accounts.ErrAccountDisabled)
	}

	home, err := pathutil.SafeJoin(a.root, account.HomeDir())
	if err != nil {
		return nil, fmt.Errorf("%w: home directory of %s escapes root", auth.ErrBackendUnavailable, corelog.SanitizeUserID(username))
	}

	storage, err := NewLocalFSAdapter(home, a.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrBackendUnavailable, err)
	}

	return &session.Descriptor{
		User:            account.Username,
		Backend:         backendName,
		Home:            home,
		AuthenticatedAt: time.Now().UTC(),
		Storage:         storage,
	}, nil
}
