package auth

import "github.com/ebogdum/davgate/session"

// OutcomeKind classifies an authentication attempt.
type OutcomeKind int

const (
	// OutcomeRejected means the backend refused the credentials. The zero
	// value, so an uninitialized Outcome never reads as success.
	OutcomeRejected OutcomeKind = iota
	// OutcomeAuthenticated means the backend accepted the credentials.
	OutcomeAuthenticated
	// OutcomeInternalError means the attempt failed for reasons unrelated to
	// credential validity.
	OutcomeInternalError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	case OutcomeInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one authentication attempt. The dispatcher maps
// Authenticated to "proceed", Rejected to an unauthorized response and
// InternalError to a server error.
type Outcome struct {
	kind    OutcomeKind
	session *session.Descriptor
	cause   error
}

// Authenticated returns a successful outcome carrying d.
func Authenticated(d *session.Descriptor) Outcome {
	return Outcome{kind: OutcomeAuthenticated, session: d}
}

// Rejected returns an outcome for refused credentials.
func Rejected() Outcome {
	return Outcome{kind: OutcomeRejected}
}

// InternalError returns an outcome for a failure unrelated to the credentials.
func InternalError(cause error) Outcome {
	return Outcome{kind: OutcomeInternalError, cause: cause}
}

// Kind reports the classification.
func (o Outcome) Kind() OutcomeKind { return o.kind }

// Session returns the descriptor of an Authenticated outcome, nil otherwise.
func (o Outcome) Session() *session.Descriptor { return o.session }

// Err returns the cause of an InternalError outcome, nil otherwise. It is for
// operators; it must not be rendered to remote clients.
func (o Outcome) Err() error { return o.cause }

func (o Outcome) String() string { return o.kind.String() }
