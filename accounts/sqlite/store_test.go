package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/accounts"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "accounts.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "alice")
	assert.ErrorIs(t, err, accounts.ErrNotFound)

	alice := &accounts.Account{Username: "alice", PasswordHash: "$2a$hash"}
	require.NoError(t, store.Create(ctx, alice))
	assert.ErrorIs(t, store.Create(ctx, &accounts.Account{Username: "alice", PasswordHash: "x"}), accounts.ErrAlreadyExists)

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "$2a$hash", got.PasswordHash)
	assert.False(t, got.Disabled)
	assert.WithinDuration(t, alice.CreatedAt, got.CreatedAt, 0)

	got.Disabled = true
	got.Home = "shared"
	require.NoError(t, store.Update(ctx, got))

	got, err = store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Disabled)
	assert.Equal(t, "shared", got.HomeDir())

	assert.ErrorIs(t, store.Update(ctx, &accounts.Account{Username: "ghost"}), accounts.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "alice"))
	assert.ErrorIs(t, store.Delete(ctx, "alice"), accounts.ErrNotFound)
}

func TestSQLiteStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, store.Create(ctx, &accounts.Account{Username: name, PasswordHash: "h"}))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, "bob", list[1].Username)
	assert.Equal(t, "carol", list[2].Username)
}

func TestSQLiteStore_RejectsInvalidUsername(t *testing.T) {
	store := newTestStore(t)
	err := store.Create(context.Background(), &accounts.Account{Username: "../etc", PasswordHash: "h"})
	assert.ErrorIs(t, err, accounts.ErrInvalidUsername)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")

	store, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &accounts.Account{Username: "alice", PasswordHash: "h"}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "alice")
	assert.NoError(t, err)
}
