package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/metadata"
)

func newTestAdapter(t *testing.T) (*LocalFSAdapter, string) {
	t.Helper()
	root := t.TempDir()
	a, err := NewLocalFSAdapter(root, zap.NewNop())
	require.NoError(t, err)
	return a, root
}

func readAll(t *testing.T, a *LocalFSAdapter, name string) string {
	t.Helper()
	rc, err := a.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalFSAdapter_FileLifecycle(t *testing.T) {
	ctx := context.Background()
	a, root := newTestAdapter(t)

	require.NoError(t, a.Create(ctx, "/hello.txt", strings.NewReader("hello"), 5))
	assert.ErrorIs(t, a.Create(ctx, "/hello.txt", strings.NewReader("again"), 5), metadata.ErrAlreadyExists)
	assert.Equal(t, "hello", readAll(t, a, "/hello.txt"))

	require.NoError(t, a.Update(ctx, "/hello.txt", strings.NewReader("goodbye"), 7))
	assert.Equal(t, "goodbye", readAll(t, a, "/hello.txt"))

	md, err := a.Stat(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "/hello.txt", md.Path)
	assert.Equal(t, "hello.txt", md.Name)
	assert.Equal(t, metadata.TypeFile, md.Type)
	assert.EqualValues(t, 7, md.Size)
	assert.NotEmpty(t, md.ETag)

	require.NoError(t, a.Delete(ctx, "/hello.txt"))
	assert.ErrorIs(t, a.Delete(ctx, "/hello.txt"), metadata.ErrNotFound)
	_, err = a.Open(ctx, "/hello.txt")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	leftovers, err := filepath.Glob(filepath.Join(root, ".davgate-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "update must not leave temp files behind")
}

func TestLocalFSAdapter_Directories(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	require.NoError(t, a.CreateDirectory(ctx, "/docs"))
	assert.ErrorIs(t, a.CreateDirectory(ctx, "/docs"), metadata.ErrAlreadyExists)
	assert.ErrorIs(t, a.CreateDirectory(ctx, "/missing/child"), metadata.ErrNotFound)

	require.NoError(t, a.Create(ctx, "/docs/a.txt", strings.NewReader("a"), 1))
	require.NoError(t, a.CreateDirectory(ctx, "/docs/sub"))

	children, err := a.ListDirectory(ctx, "/docs")
	require.NoError(t, err)
	require.Len(t, children, 2)

	byName := map[string]*metadata.Metadata{}
	for _, c := range children {
		byName[c.Name] = c
	}
	assert.Equal(t, "/docs/a.txt", byName["a.txt"].Path)
	assert.True(t, byName["sub"].IsDir())

	root, err := a.Stat(ctx, "/")
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, "/", root.Path)

	assert.Error(t, a.Delete(ctx, "/docs"), "non-empty directory")
	assert.ErrorIs(t, a.Delete(ctx, "/"), metadata.ErrForbidden)
}

func TestLocalFSAdapter_Rename(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	require.NoError(t, a.CreateDirectory(ctx, "/src"))
	require.NoError(t, a.Create(ctx, "/src/f.txt", strings.NewReader("x"), 1))

	require.NoError(t, a.Rename(ctx, "/src", "/dst"))
	_, err := a.Stat(ctx, "/src")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	assert.Equal(t, "x", readAll(t, a, "/dst/f.txt"))

	require.NoError(t, a.Create(ctx, "/other.txt", strings.NewReader("y"), 1))
	require.NoError(t, a.Rename(ctx, "/other.txt", "/dst/f.txt"))
	assert.Equal(t, "y", readAll(t, a, "/dst/f.txt"))

	require.NoError(t, a.CreateDirectory(ctx, "/occupied"))
	assert.ErrorIs(t, a.Rename(ctx, "/dst", "/occupied"), metadata.ErrAlreadyExists)
	assert.ErrorIs(t, a.Rename(ctx, "/nope", "/x"), metadata.ErrNotFound)
}

func TestLocalFSAdapter_Confinement(t *testing.T) {
	ctx := context.Background()
	a, root := newTestAdapter(t)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	_, err := a.Open(ctx, "/../"+filepath.Base(outside)+"/secret")
	assert.ErrorIs(t, err, metadata.ErrForbidden)

	_, err = a.Open(ctx, "/escape/secret")
	assert.ErrorIs(t, err, metadata.ErrForbidden)

	assert.ErrorIs(t, a.Create(ctx, "/escape/new", strings.NewReader("n"), 1), metadata.ErrForbidden)
	assert.ErrorIs(t, a.Rename(ctx, "/escape/secret", "/stolen"), metadata.ErrForbidden)
}
