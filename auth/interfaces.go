// Package auth validates credentials presented to the WebDAV front end against
// the storage backend and classifies the result for the protocol dispatcher.
// It is the only place where request identity crosses from the protocol layer
// into the storage layer.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/ebogdum/davgate/session"
)

// Common authentication/authorization errors
var (
	// ErrAuthenticationFailed marks a backend rejection of the presented
	// credentials (bad password, unknown user, locked account). Backend
	// authenticators wrap it; the gate maps it to a Rejected outcome.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBackendUnavailable marks a backend failure unrelated to credential
	// validity (connectivity, protocol error, misconfiguration).
	ErrBackendUnavailable = errors.New("authentication backend unavailable")

	// ErrUnsupportedAuthScheme is the misuse signal raised when a dispatcher
	// attempts challenge/response authentication.
	ErrUnsupportedAuthScheme = errors.New("unsupported authentication scheme")

	// ErrPermissionDenied is returned by storage operations the backend refused.
	ErrPermissionDenied = errors.New("permission denied")
)

// SecurityManager is the contract the protocol dispatcher consumes: an
// authenticator, an authorizer, and a realm/scheme provider.
type SecurityManager interface {
	// Authenticate validates a username/password pair and, on success, binds
	// the resulting session to the unit of work in ctx.
	Authenticate(ctx context.Context, username, password string) Outcome

	// AuthenticateChallenge validates a challenge/response (digest) answer.
	AuthenticateChallenge(ctx context.Context, challenge ChallengeResponse) (Outcome, error)

	// Authorize decides whether an authenticated identity may issue method
	// against resource.
	Authorize(r *http.Request, method string, identity *session.Descriptor, resource string) bool

	// Realm returns the realm advertised to clients connecting to host.
	Realm(host string) string

	// IsChallengeAuthAllowed reports whether challenge/response
	// authentication may be offered to clients.
	IsChallengeAuthAllowed() bool
}

// BackendAuthenticator performs the network authentication against the
// storage backend. Implementations own their timeouts and connection reuse.
//
// Authenticate returns a session descriptor on success. Credential rejections
// must wrap ErrAuthenticationFailed; any other error is treated as an
// internal failure.
type BackendAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*session.Descriptor, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// ChallengeResponse carries the fields of a digest authorization answer.
type ChallengeResponse struct {
	Username string
	Realm    string
	Nonce    string
	URI      string
	Method   string
	Response string
}

// UnsupportedSchemeError reports an attempt to use an authentication scheme
// this gate does not implement.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return e.Scheme + " auth is not supported"
}

// Is lets errors.Is match ErrUnsupportedAuthScheme.
func (e *UnsupportedSchemeError) Is(target error) bool {
	return target == ErrUnsupportedAuthScheme
}
