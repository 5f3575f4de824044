package core

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	corelog "github.com/ebogdum/davgate/core/log"
	"github.com/ebogdum/davgate/metadata"
	"github.com/ebogdum/davgate/session"
)

// Mkdir implements webdav.FileSystem. The parent must already exist.
func (e *Engine) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	d, err := e.identity(ctx)
	if err != nil {
		return err
	}
	clean, err := cleanName("mkdir", name)
	if err != nil {
		return err
	}

	if _, err := e.stat(ctx, d, clean); err == nil {
		return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrExist}
	} else if !errors.Is(err, metadata.ErrNotFound) {
		return pathError("mkdir", name, err)
	}
	if err := e.requireParentDir(ctx, d, "mkdir", clean); err != nil {
		return err
	}

	start := time.Now()
	err = d.Storage.CreateDirectory(ctx, clean)
	observe(d, "mkdir", start)
	e.invalidate(clean)
	if err != nil {
		return pathError("mkdir", name, err)
	}

	e.logger.Debug("Collection created", corelog.User(d.User), corelog.Path(clean))
	return nil
}

// RemoveAll implements webdav.FileSystem. Removing a missing name succeeds;
// the root collection cannot be removed.
func (e *Engine) RemoveAll(ctx context.Context, name string) error {
	d, err := e.identity(ctx)
	if err != nil {
		return err
	}
	clean, err := cleanName("remove", name)
	if err != nil {
		return err
	}
	if clean == "/" {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
	}

	release, err := e.acquire(ctx, d, clean)
	if err != nil {
		return &os.PathError{Op: "remove", Path: name, Err: err}
	}
	defer release()

	md, err := d.Storage.Stat(ctx, clean)
	if errors.Is(err, metadata.ErrNotFound) {
		e.invalidate(clean)
		return nil
	}
	if err != nil {
		return pathError("remove", name, err)
	}

	err = e.removeTree(ctx, d, md)
	e.invalidate(clean)
	if err != nil {
		return pathError("remove", name, err)
	}

	e.logger.Debug("Removed", corelog.User(d.User), corelog.Path(clean))
	return nil
}

// removeTree deletes children before their collection.
func (e *Engine) removeTree(ctx context.Context, d *session.Descriptor, md *metadata.Metadata) error {
	if md.IsDir() {
		start := time.Now()
		children, err := d.Storage.ListDirectory(ctx, md.Path)
		observe(d, "list", start)
		if err != nil && !errors.Is(err, metadata.ErrNotFound) {
			return err
		}
		for _, child := range children {
			if err := e.removeTree(ctx, d, child); err != nil {
				return err
			}
		}
	}

	start := time.Now()
	err := d.Storage.Delete(ctx, md.Path)
	observe(d, "delete", start)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil
	}
	return err
}

// Rename implements webdav.FileSystem. The handler removes an existing
// destination before calling Rename when overwriting is requested.
func (e *Engine) Rename(ctx context.Context, oldName, newName string) error {
	d, err := e.identity(ctx)
	if err != nil {
		return err
	}
	oldClean, err := cleanName("rename", oldName)
	if err != nil {
		return err
	}
	newClean, err := cleanName("rename", newName)
	if err != nil {
		return err
	}
	if oldClean == "/" || newClean == "/" {
		return &os.PathError{Op: "rename", Path: oldName, Err: os.ErrPermission}
	}
	if oldClean == newClean {
		return nil
	}

	releaseOld, err := e.acquire(ctx, d, oldClean)
	if err != nil {
		return &os.PathError{Op: "rename", Path: oldName, Err: err}
	}
	defer releaseOld()
	releaseNew, err := e.acquire(ctx, d, newClean)
	if err != nil {
		return &os.PathError{Op: "rename", Path: newName, Err: err}
	}
	defer releaseNew()

	if err := e.requireParentDir(ctx, d, "rename", newClean); err != nil {
		return err
	}

	start := time.Now()
	err = d.Storage.Rename(ctx, oldClean, newClean)
	observe(d, "rename", start)
	e.invalidate(oldClean)
	e.invalidate(newClean)
	if err != nil {
		e.logger.Warn("Rename failed",
			corelog.User(d.User), corelog.Path(oldClean), zap.Error(err))
		return pathError("rename", oldName, err)
	}
	return nil
}

// dirFile lists a collection. Children are fetched on the first Readdir.
type dirFile struct {
	ctx      context.Context
	engine   *Engine
	identity *session.Descriptor
	md       *metadata.Metadata

	children []fs.FileInfo
	loaded   bool
	offset   int
}

func (f *dirFile) load() error {
	if f.loaded {
		return nil
	}

	d := f.identity
	start := time.Now()
	entries, err := d.Storage.ListDirectory(f.ctx, f.md.Path)
	observe(d, "list", start)
	if err != nil {
		return pathError("readdir", f.md.Path, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	id := cacheIdentity(d)
	f.children = make([]fs.FileInfo, 0, len(entries))
	for _, md := range entries {
		f.engine.stats.Set(id, md.Path, md)
		f.children = append(f.children, newFileInfo(md))
	}
	f.loaded = true
	return nil
}

// Readdir follows os.File.Readdir: count <= 0 returns everything left,
// count > 0 returns at most count entries and io.EOF once exhausted.
func (f *dirFile) Readdir(count int) ([]fs.FileInfo, error) {
	if err := f.load(); err != nil {
		return nil, err
	}

	rest := f.children[f.offset:]
	if count <= 0 {
		f.offset = len(f.children)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if count > len(rest) {
		count = len(rest)
	}
	f.offset += count
	return rest[:count], nil
}

func (f *dirFile) Stat() (fs.FileInfo, error) {
	return newFileInfo(f.md), nil
}

func (f *dirFile) Read([]byte) (int, error) {
	return 0, &os.PathError{Op: "read", Path: f.md.Path, Err: errIsDirectory}
}

func (f *dirFile) Write([]byte) (int, error) {
	return 0, &os.PathError{Op: "write", Path: f.md.Path, Err: errIsDirectory}
}

func (f *dirFile) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekStart {
		f.offset = 0
		return 0, nil
	}
	return 0, &os.PathError{Op: "seek", Path: f.md.Path, Err: errIsDirectory}
}

func (f *dirFile) Close() error {
	return nil
}
