package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ebogdum/davgate/session"
)

// fakeBackend accepts any user whose password is "correctpw".
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	err      error
	noResult bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Authenticate(_ context.Context, username, password string) (*session.Descriptor, error) {
	f.mu.Lock()
	f.calls = append(f.calls, username)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.noResult {
		return nil, nil
	}
	if password != "correctpw" {
		return nil, fmt.Errorf("backend said no: %w", ErrAuthenticationFailed)
	}
	return &session.Descriptor{User: username, Backend: "fake"}, nil
}

func newTestGate(t *testing.T, backend BackendAuthenticator) (*Gate, *session.Cache, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	cache := session.NewCache()
	return NewGate(backend, cache, "irods", zap.New(core)), cache, logs
}

func beginUnit(t *testing.T, cache *session.Cache) context.Context {
	t.Helper()
	ctx, end := cache.Begin(context.Background())
	t.Cleanup(end)
	return ctx
}

func TestGate_EndToEnd(t *testing.T) {
	backend := &fakeBackend{}
	gate, cache, _ := newTestGate(t, backend)
	ctx := beginUnit(t, cache)

	out := gate.Authenticate(ctx, "alice@domainX", "correctpw")

	require.Equal(t, OutcomeAuthenticated, out.Kind())
	require.NotNil(t, out.Session())
	assert.Equal(t, "alice", out.Session().User)
	assert.Equal(t, []string{"alice"}, backend.calls, "backend must see the normalized name")

	cached, ok := cache.Get(ctx)
	require.True(t, ok)
	assert.Same(t, out.Session(), cached)

	assert.Equal(t, "irods", gate.Realm("any.example.org"))
	assert.Equal(t, "irods", gate.Realm(""))
}

func TestGate_Classification(t *testing.T) {
	tests := []struct {
		name      string
		backend   *fakeBackend
		password  string
		wantKind  OutcomeKind
		wantCache bool
		wantLevel zapcore.Level
	}{
		{
			name:      "success",
			backend:   &fakeBackend{},
			password:  "correctpw",
			wantKind:  OutcomeAuthenticated,
			wantCache: true,
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:      "wrong password",
			backend:   &fakeBackend{},
			password:  "wrong",
			wantKind:  OutcomeRejected,
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:      "locked account",
			backend:   &fakeBackend{err: fmt.Errorf("account locked: %w", ErrAuthenticationFailed)},
			password:  "correctpw",
			wantKind:  OutcomeRejected,
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:      "connectivity failure",
			backend:   &fakeBackend{err: fmt.Errorf("dial tcp: connection refused: %w", ErrBackendUnavailable)},
			password:  "correctpw",
			wantKind:  OutcomeInternalError,
			wantLevel: zapcore.ErrorLevel,
		},
		{
			name:      "unclassified failure",
			backend:   &fakeBackend{err: errors.New("protocol error")},
			password:  "correctpw",
			wantKind:  OutcomeInternalError,
			wantLevel: zapcore.ErrorLevel,
		},
		{
			name:      "backend returned nothing",
			backend:   &fakeBackend{noResult: true},
			password:  "correctpw",
			wantKind:  OutcomeInternalError,
			wantLevel: zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, cache, logs := newTestGate(t, tt.backend)
			ctx := beginUnit(t, cache)

			out := gate.Authenticate(ctx, "alice", tt.password)
			assert.Equal(t, tt.wantKind, out.Kind())

			_, cached := cache.Get(ctx)
			assert.Equal(t, tt.wantCache, cached)

			if tt.wantKind == OutcomeInternalError {
				assert.Error(t, out.Err())
			} else {
				assert.NoError(t, out.Err())
			}
			if tt.wantKind != OutcomeAuthenticated {
				assert.Nil(t, out.Session())
			}

			entries := logs.All()
			require.NotEmpty(t, entries)
			assert.Equal(t, tt.wantLevel, entries[len(entries)-1].Level)
		})
	}
}

func TestGate_RejectionIsNeverLoggedAsError(t *testing.T) {
	gate, cache, logs := newTestGate(t, &fakeBackend{})
	ctx := beginUnit(t, cache)

	gate.Authenticate(ctx, "alice", "nope")
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestGate_PasswordNeverLogged(t *testing.T) {
	gate, cache, logs := newTestGate(t, &fakeBackend{err: errors.New("boom")})
	ctx := beginUnit(t, cache)

	gate.Authenticate(ctx, "alice", "s3cr3t-value")
	for _, e := range logs.All() {
		assert.NotContains(t, e.Message, "s3cr3t-value")
		for _, f := range e.Context {
			assert.NotContains(t, f.String, "s3cr3t-value")
		}
	}
}

func TestGate_ResetOnEntry(t *testing.T) {
	gate, cache, _ := newTestGate(t, &fakeBackend{})
	ctx := beginUnit(t, cache)

	stale := &session.Descriptor{User: "stale"}
	require.NoError(t, cache.Set(ctx, stale))

	out := gate.Authenticate(ctx, "alice", "wrong")
	require.Equal(t, OutcomeRejected, out.Kind())

	_, ok := cache.Get(ctx)
	assert.False(t, ok, "failed attempt must leave the slot empty, not stale")

	require.NoError(t, cache.Set(ctx, stale))
	out = gate.Authenticate(ctx, "bob", "correctpw")
	require.Equal(t, OutcomeAuthenticated, out.Kind())
	got, _ := cache.Get(ctx)
	assert.Equal(t, "bob", got.User)
}

func TestGate_NoCredentialShortCircuit(t *testing.T) {
	backend := &fakeBackend{}
	gate, cache, _ := newTestGate(t, backend)
	ctx := beginUnit(t, cache)

	require.Equal(t, OutcomeAuthenticated, gate.Authenticate(ctx, "alice", "correctpw").Kind())
	// The password changed on the backend: the same credentials are now refused.
	backend.err = fmt.Errorf("password changed: %w", ErrAuthenticationFailed)
	assert.Equal(t, OutcomeRejected, gate.Authenticate(ctx, "alice", "correctpw").Kind())
	assert.Len(t, backend.calls, 2)
}

func TestGate_AuthenticateOutsideUnitOfWork(t *testing.T) {
	gate, _, _ := newTestGate(t, &fakeBackend{})

	out := gate.Authenticate(context.Background(), "alice", "correctpw")
	assert.Equal(t, OutcomeInternalError, out.Kind())
	assert.ErrorIs(t, out.Err(), session.ErrNoUnitOfWork)
}

func TestGate_ToleratesMalformedInput(t *testing.T) {
	gate, cache, _ := newTestGate(t, &fakeBackend{})
	ctx := beginUnit(t, cache)

	for _, user := range []string{"", "@", "@@@", "\x00", "a\nb@c"} {
		out := gate.Authenticate(ctx, user, "")
		assert.Equal(t, OutcomeRejected, out.Kind(), "user %q", user)
	}
}

func TestGate_ConcurrentUnitsOfWork(t *testing.T) {
	gate, cache, _ := newTestGate(t, &fakeBackend{})

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				ctx, end := cache.Begin(context.Background())
				if _, ok := cache.Get(ctx); ok {
					t.Errorf("%s: slot populated before authentication", user)
				}
				out := gate.Authenticate(ctx, user+"@example", "correctpw")
				got, ok := cache.Get(ctx)
				if out.Kind() != OutcomeAuthenticated || !ok || got.User != user {
					t.Errorf("%s: read %+v from own unit of work", user, got)
				}
				end()
			}
		}(user)
	}
	wg.Wait()
}

func TestGate_ChallengeAuthRefused(t *testing.T) {
	gate, cache, logs := newTestGate(t, &fakeBackend{})
	ctx := beginUnit(t, cache)

	assert.False(t, gate.IsChallengeAuthAllowed())

	for _, ch := range []ChallengeResponse{
		{},
		{Username: "alice", Realm: "irods", Nonce: "abc", URI: "/", Method: "GET", Response: "deadbeef"},
	} {
		out, err := gate.AuthenticateChallenge(ctx, ch)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedAuthScheme)
		assert.EqualError(t, err, "digest auth is not supported")

		var schemeErr *UnsupportedSchemeError
		require.True(t, errors.As(err, &schemeErr))
		assert.Equal(t, "digest", schemeErr.Scheme)
		assert.NotEqual(t, OutcomeAuthenticated, out.Kind())
	}

	_, ok := cache.Get(ctx)
	assert.False(t, ok)
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestGate_AuthorizeIsUnconditional(t *testing.T) {
	gate, _, _ := newTestGate(t, &fakeBackend{})
	identity := &session.Descriptor{User: "alice"}

	methods := []string{
		http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions,
		"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK",
	}
	for _, method := range methods {
		for _, resource := range []string{"/", "/alice/file.txt", "/../etc/passwd", ""} {
			r := httptest.NewRequest(method, "/", nil)
			assert.True(t, gate.Authorize(r, method, identity, resource), "%s %s", method, resource)
		}
	}
}

func TestNewGate_DefaultRealm(t *testing.T) {
	gate := NewGate(&fakeBackend{}, session.NewCache(), "", nil)
	assert.Equal(t, DefaultRealm, gate.Realm("example.org"))
}

func TestOutcome_ZeroValueIsNotSuccess(t *testing.T) {
	var out Outcome
	assert.Equal(t, OutcomeRejected, out.Kind())
	assert.Nil(t, out.Session())
	assert.Equal(t, "rejected", out.String())
	assert.Equal(t, "internal_error", InternalError(errors.New("x")).String())
	assert.Equal(t, "authenticated", Authenticated(&session.Descriptor{}).String())
}
