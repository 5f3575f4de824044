// Package core serves the WebDAV tree. Engine implements webdav.FileSystem
// and performs every operation with the storage of the identity bound to the
// request's unit of work.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/ebogdum/davgate/auth"
	corelog "github.com/ebogdum/davgate/core/log"
	"github.com/ebogdum/davgate/internal/pathutil"
	"github.com/ebogdum/davgate/locks"
	"github.com/ebogdum/davgate/metadata"
	"github.com/ebogdum/davgate/metrics"
	"github.com/ebogdum/davgate/session"
)

// ErrLocked is returned when another writer holds the resource.
var ErrLocked = webdav.ErrLocked

// Engine represents the core davgate engine that maps WebDAV operations onto
// the caller's storage backend.
type Engine struct {
	lockManager locks.Manager
	stats       *StatCache
	tempDir     string
	logger      *zap.Logger
}

var _ webdav.FileSystem = (*Engine)(nil)

// NewEngine creates a new core engine instance. Uploads are spooled to
// tempDir (the OS default when empty) before they are sent to the backend.
func NewEngine(lockManager locks.Manager, stats *StatCache, tempDir string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockManager == nil {
		lockManager = locks.NewLocalManager()
	}
	return &Engine{
		lockManager: lockManager,
		stats:       stats,
		tempDir:     tempDir,
		logger:      logger.Named("engine"),
	}
}

// identity returns the descriptor of the request. There is no fallback
// identity: without an authenticated session nothing is served.
func (e *Engine) identity(ctx context.Context) (*session.Descriptor, error) {
	d, ok := session.FromContext(ctx)
	if !ok || d.Storage == nil {
		return nil, auth.ErrAuthenticationFailed
	}
	return d, nil
}

// cacheIdentity scopes stat cache entries to one backend namespace view.
func cacheIdentity(d *session.Descriptor) string {
	return d.Backend + "\x00" + d.Home + "\x00" + d.User
}

// lockKey names a resource across users: two identities writing the same
// backend object contend for the same lock.
func lockKey(d *session.Descriptor, name string) string {
	return d.Backend + ":" + d.Home + ":" + name
}

func (e *Engine) acquire(ctx context.Context, d *session.Descriptor, name string) (func(), error) {
	key := lockKey(d, name)
	ok, err := e.lockManager.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		if err := e.lockManager.Release(ctx, key); err != nil {
			e.logger.Error("Failed to release lock",
				zap.String("path", corelog.SanitizePath(name)), zap.Error(err))
		}
	}, nil
}

// observe records a backend call in the backend metrics.
func observe(d *session.Descriptor, op string, start time.Time) {
	metrics.BackendOpsTotal.WithLabelValues(d.Backend, op).Inc()
	metrics.BackendOpDuration.WithLabelValues(d.Backend, op).Observe(time.Since(start).Seconds())
}

// cleanName validates a WebDAV name and returns its canonical rooted form.
func cleanName(op, name string) (string, error) {
	if err := pathutil.ValidatePath(name); err != nil && name != "" {
		return "", &os.PathError{Op: op, Path: name, Err: os.ErrPermission}
	}
	clean, err := pathutil.Clean(name)
	if err != nil {
		return "", &os.PathError{Op: op, Path: name, Err: os.ErrPermission}
	}
	return clean, nil
}

// pathError converts storage errors into the os errors the WebDAV handler
// maps to status codes.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var target error
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		target = os.ErrNotExist
	case errors.Is(err, metadata.ErrAlreadyExists):
		target = os.ErrExist
	case errors.Is(err, metadata.ErrForbidden):
		target = os.ErrPermission
	default:
		return &os.PathError{Op: op, Path: name, Err: err}
	}
	return &os.PathError{Op: op, Path: name, Err: target}
}

// stat returns metadata for an already cleaned name, consulting the cache.
func (e *Engine) stat(ctx context.Context, d *session.Descriptor, name string) (*metadata.Metadata, error) {
	id := cacheIdentity(d)
	if md, ok := e.stats.Get(id, name); ok {
		return md, nil
	}

	start := time.Now()
	md, err := d.Storage.Stat(ctx, name)
	observe(d, "stat", start)
	if err != nil {
		return nil, err
	}

	e.stats.Set(id, name, md)
	return md, nil
}

func (e *Engine) invalidate(name string) {
	e.stats.Invalidate(name, pathutil.Parent(name))
}

// Stat implements webdav.FileSystem.
func (e *Engine) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	d, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	clean, err := cleanName("stat", name)
	if err != nil {
		return nil, err
	}

	md, err := e.stat(ctx, d, clean)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return newFileInfo(md), nil
}

// requireParentDir checks that the parent of name exists and is a collection.
func (e *Engine) requireParentDir(ctx context.Context, d *session.Descriptor, op, name string) error {
	parent, err := e.stat(ctx, d, pathutil.Parent(name))
	if err != nil {
		return pathError(op, name, err)
	}
	if !parent.IsDir() {
		return &os.PathError{Op: op, Path: name, Err: os.ErrNotExist}
	}
	return nil
}
