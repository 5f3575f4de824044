// Package session holds the backend identity established for one unit of work
// (one inbound request) and makes it available to everything that serves that
// request.
package session

import (
	"time"

	"github.com/ebogdum/davgate/backends"
)

// Descriptor represents a successfully authenticated backend identity.
// It is built once by a backend authenticator and must be treated as
// read-only afterwards. Holders read it per call; the unit of work that
// stored it owns its lifetime.
type Descriptor struct {
	// User is the effective backend user name.
	User string

	// Backend names the backend that issued the identity ("s3", "localfs").
	Backend string

	// Home is the backend location the user's namespace is rooted at
	// (bucket for s3, directory for localfs).
	Home string

	// AuthenticatedAt records when the backend accepted the credentials.
	AuthenticatedAt time.Time

	// Storage performs I/O with this identity's permissions.
	Storage backends.Storage
}
