package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	corelog "github.com/ebogdum/davgate/core/log"
	"github.com/ebogdum/davgate/metrics"
	"github.com/ebogdum/davgate/session"
)

// DefaultRealm is advertised when no realm is configured.
const DefaultRealm = "davgate"

// Gate implements SecurityManager on top of a BackendAuthenticator and a
// session.Cache.
type Gate struct {
	backend BackendAuthenticator
	cache   *session.Cache
	realm   string
	logger  *zap.Logger
}

var _ SecurityManager = (*Gate)(nil)

// NewGate creates a gate that authenticates against backend and binds
// sessions into cache. An empty realm selects DefaultRealm.
func NewGate(backend BackendAuthenticator, cache *session.Cache, realm string, logger *zap.Logger) *Gate {
	if realm == "" {
		realm = DefaultRealm
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		backend: backend,
		cache:   cache,
		realm:   realm,
		logger:  logger.Named("auth"),
	}
}

// Authenticate performs a fresh backend authentication for every call; no
// earlier approval is reused. Whatever the current unit of work held before
// the call is cleared first, so a failed attempt leaves the slot empty.
func (g *Gate) Authenticate(ctx context.Context, username, password string) Outcome {
	g.cache.Clear(ctx)

	username = NormalizeUsername(username)
	backend := g.backend.Name()

	start := time.Now()
	d, err := g.backend.Authenticate(ctx, username, password)
	metrics.AuthDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	outcome := g.classify(ctx, username, d, err)
	metrics.AuthAttemptsTotal.WithLabelValues(backend, outcome.Kind().String()).Inc()
	return outcome
}

func (g *Gate) classify(ctx context.Context, username string, d *session.Descriptor, err error) Outcome {
	switch {
	case err == nil && d != nil:
		if err := g.cache.Set(ctx, d); err != nil {
			g.logger.Error("Authenticated outside of a unit of work",
				corelog.User(username), zap.Error(err))
			return InternalError(err)
		}
		g.logger.Info("User authenticated",
			corelog.User(username), zap.String("backend", d.Backend))
		return Authenticated(d)

	case errors.Is(err, ErrAuthenticationFailed):
		g.logger.Info("Authentication rejected", corelog.User(username), zap.Error(err))
		return Rejected()

	default:
		if err == nil {
			err = fmt.Errorf("%w: backend returned no session", ErrBackendUnavailable)
		}
		g.logger.Error("Authentication failed with backend error",
			corelog.User(username), zap.String("backend", g.backend.Name()), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("auth", "backend").Inc()
		return InternalError(err)
	}
}

// AuthenticateChallenge always fails: challenge/response authentication is
// not implemented. Reaching it means the dispatcher ignored
// IsChallengeAuthAllowed.
func (g *Gate) AuthenticateChallenge(ctx context.Context, challenge ChallengeResponse) (Outcome, error) {
	err := &UnsupportedSchemeError{Scheme: "digest"}
	g.logger.Error("Dispatcher attempted challenge authentication",
		corelog.User(challenge.Username), zap.Error(err))
	return InternalError(err), err
}

// Authorize grants every request. Identity is established by Authenticate;
// permissions are enforced by the storage backend on the actual I/O call.
func (g *Gate) Authorize(r *http.Request, method string, identity *session.Descriptor, resource string) bool {
	return true
}

// Realm returns the configured realm for every host.
func (g *Gate) Realm(host string) string {
	return g.realm
}

// IsChallengeAuthAllowed always reports false.
func (g *Gate) IsChallengeAuthAllowed() bool {
	return false
}
