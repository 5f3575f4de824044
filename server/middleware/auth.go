// Package middleware holds the HTTP middleware chain in front of the WebDAV
// handler. BasicAuth is the protocol dispatcher of the auth package: it
// decides when to authenticate and renders the outcome as an HTTP status.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/davgate/auth"
	corelog "github.com/ebogdum/davgate/core/log"
	"github.com/ebogdum/davgate/server/handlers"
	"github.com/ebogdum/davgate/session"
)

// BasicAuth authenticates every request with the credentials it carries.
// It must run inside UnitOfWork; the session it binds lives in that slot.
//
// Requests without Basic credentials get a 401 challenge. Digest
// credentials are answered with the same challenge unless the security
// manager allows challenge authentication.
func BasicAuth(sm auth.SecurityManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			realm := sm.Realm(r.Host)

			var outcome auth.Outcome
			header := r.Header.Get("Authorization")
			scheme, params, _ := strings.Cut(header, " ")
			switch {
			case strings.EqualFold(scheme, "Digest") && sm.IsChallengeAuthAllowed():
				o, err := sm.AuthenticateChallenge(r.Context(), parseDigest(params, r.Method))
				if err != nil {
					logger.Error("Challenge authentication failed", zap.Error(err))
					handlers.SendErrorResponse(w, logger, err, http.StatusInternalServerError)
					return
				}
				outcome = o

			case strings.EqualFold(scheme, "Basic"):
				username, password, ok := r.BasicAuth()
				if !ok {
					logger.Debug("Malformed Basic credentials")
					challenge(w, logger, realm)
					return
				}
				outcome = sm.Authenticate(r.Context(), username, password)

			default:
				if header != "" {
					logger.Debug("Unsupported authorization scheme", zap.String("scheme", scheme))
				}
				challenge(w, logger, realm)
				return
			}

			switch outcome.Kind() {
			case auth.OutcomeAuthenticated:
				next.ServeHTTP(w, r)
			case auth.OutcomeInternalError:
				handlers.SendErrorResponse(w, logger, outcome.Err(), http.StatusInternalServerError)
			default:
				challenge(w, logger, realm)
			}
		})
	}
}

// Authorize asks the security manager whether the authenticated identity of
// the request may issue it. Denied requests get 403.
func Authorize(sm auth.SecurityManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := session.FromContext(r.Context())
			if !ok {
				challenge(w, logger, sm.Realm(r.Host))
				return
			}
			if !sm.Authorize(r, r.Method, identity, r.URL.Path) {
				logger.Info("Request denied",
					corelog.User(identity.User),
					zap.String("method", r.Method),
					corelog.Path(r.URL.Path))
				handlers.SendErrorResponse(w, logger, auth.ErrPermissionDenied, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func challenge(w http.ResponseWriter, logger *zap.Logger, realm string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, realm))
	handlers.SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
}

// parseDigest reads the fields of a Digest authorization header.
func parseDigest(params, method string) auth.ChallengeResponse {
	c := auth.ChallengeResponse{Method: method}
	for _, part := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch strings.ToLower(key) {
		case "username":
			c.Username = value
		case "realm":
			c.Realm = value
		case "nonce":
			c.Nonce = value
		case "uri":
			c.URI = value
		case "response":
			c.Response = value
		}
	}
	return c
}
