package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	corelog "github.com/ebogdum/davgate/core/log"
	"github.com/ebogdum/davgate/metadata"
	"github.com/ebogdum/davgate/session"
)

var errIsDirectory = errors.New("is a directory")

const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_APPEND | os.O_CREATE | os.O_TRUNC

// OpenFile implements webdav.FileSystem.
func (e *Engine) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	d, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	clean, err := cleanName("open", name)
	if err != nil {
		return nil, err
	}

	if flag&writeFlags != 0 {
		return e.openForWrite(ctx, d, clean, flag)
	}

	md, err := e.stat(ctx, d, clean)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	if md.IsDir() {
		return &dirFile{ctx: ctx, engine: e, identity: d, md: md}, nil
	}
	return &readFile{ctx: ctx, identity: d, md: md}, nil
}

func (e *Engine) openForWrite(ctx context.Context, d *session.Descriptor, name string, flag int) (webdav.File, error) {
	if name == "/" {
		return nil, &os.PathError{Op: "open", Path: name, Err: errIsDirectory}
	}

	md, err := e.stat(ctx, d, name)
	exists := err == nil
	switch {
	case err != nil && !errors.Is(err, metadata.ErrNotFound):
		return nil, pathError("open", name, err)
	case exists && md.IsDir():
		return nil, &os.PathError{Op: "open", Path: name, Err: errIsDirectory}
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
	case !exists && flag&os.O_CREATE == 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	case !exists:
		if err := e.requireParentDir(ctx, d, "open", name); err != nil {
			return nil, err
		}
	}

	release, err := e.acquire(ctx, d, name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}

	spool, err := os.CreateTemp(e.tempDir, "davgate-upload-*")
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to create upload spool: %w", err)
	}

	w := &writeFile{
		ctx:      ctx,
		engine:   e,
		identity: d,
		name:     name,
		exists:   exists,
		spool:    spool,
		release:  release,
	}

	// Partial writes keep the current content.
	if exists && flag&os.O_TRUNC == 0 {
		if err := w.preload(); err != nil {
			w.discard()
			return nil, pathError("open", name, err)
		}
		if flag&os.O_APPEND == 0 {
			if _, err := spool.Seek(0, io.SeekStart); err != nil {
				w.discard()
				return nil, err
			}
		}
	}
	return w, nil
}

// readFile streams an object. Seeking is free until the next Read; a Read
// at a position the open stream is not at reopens the object when the
// stream itself cannot seek.
type readFile struct {
	ctx      context.Context
	identity *session.Descriptor
	md       *metadata.Metadata

	rc   io.ReadCloser
	pos  int64 // logical offset
	rpos int64 // offset of rc
}

func (f *readFile) Read(p []byte) (int, error) {
	if err := f.sync(); err != nil {
		return 0, err
	}
	n, err := f.rc.Read(p)
	f.pos += int64(n)
	f.rpos = f.pos
	return n, err
}

func (f *readFile) sync() error {
	if f.rc != nil && f.rpos == f.pos {
		return nil
	}
	if seeker, ok := f.rc.(io.Seeker); ok {
		if _, err := seeker.Seek(f.pos, io.SeekStart); err == nil {
			f.rpos = f.pos
			return nil
		}
	}
	if f.rc != nil {
		f.rc.Close()
		f.rc = nil
	}

	start := time.Now()
	rc, err := f.identity.Storage.Open(f.ctx, f.md.Path)
	observe(f.identity, "open", start)
	if err != nil {
		return pathError("read", f.md.Path, err)
	}
	// Skipping past the end leaves rc drained, so the next Read sees io.EOF.
	if f.pos > 0 {
		if _, err := io.CopyN(io.Discard, rc, f.pos); err != nil && !errors.Is(err, io.EOF) {
			rc.Close()
			return fmt.Errorf("failed to skip to offset %d: %w", f.pos, err)
		}
	}
	f.rc, f.rpos = rc, f.pos
	return nil
}

func (f *readFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.md.Size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	f.pos = abs
	return abs, nil
}

func (f *readFile) Write([]byte) (int, error) {
	return 0, &os.PathError{Op: "write", Path: f.md.Path, Err: os.ErrPermission}
}

func (f *readFile) Readdir(int) ([]fs.FileInfo, error) {
	return nil, &os.PathError{Op: "readdir", Path: f.md.Path, Err: errors.New("not a directory")}
}

func (f *readFile) Stat() (fs.FileInfo, error) {
	return newFileInfo(f.md), nil
}

func (f *readFile) Close() error {
	if f.rc == nil {
		return nil
	}
	err := f.rc.Close()
	f.rc = nil
	return err
}

// writeFile spools content to a temp file and sends it to the backend on
// Close. The resource stays locked from open until Close.
type writeFile struct {
	ctx      context.Context
	engine   *Engine
	identity *session.Descriptor
	name     string
	exists   bool

	spool     *os.File
	release   func()
	closeOnce sync.Once
	closeErr  error
}

func (w *writeFile) preload() error {
	start := time.Now()
	rc, err := w.identity.Storage.Open(w.ctx, w.name)
	observe(w.identity, "open", start)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w.spool, rc)
	return err
}

func (w *writeFile) Read(p []byte) (int, error)                   { return w.spool.Read(p) }
func (w *writeFile) Write(p []byte) (int, error)                  { return w.spool.Write(p) }
func (w *writeFile) Seek(offset int64, whence int) (int64, error) { return w.spool.Seek(offset, whence) }

func (w *writeFile) Readdir(int) ([]fs.FileInfo, error) {
	return nil, &os.PathError{Op: "readdir", Path: w.name, Err: errors.New("not a directory")}
}

func (w *writeFile) Stat() (fs.FileInfo, error) {
	info, err := w.spool.Stat()
	if err != nil {
		return nil, err
	}
	return newFileInfo(&metadata.Metadata{
		Name:  baseName(w.name),
		Path:  w.name,
		Type:  metadata.TypeFile,
		Size:  info.Size(),
		MTime: info.ModTime(),
	}), nil
}

// Close uploads the spooled content. Closing twice returns the first result.
func (w *writeFile) Close() error {
	w.closeOnce.Do(func() {
		defer w.discard()
		w.closeErr = w.upload()
	})
	return w.closeErr
}

func (w *writeFile) upload() error {
	size, err := w.spool.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return err
	}

	d := w.identity
	start := time.Now()
	if w.exists {
		err = d.Storage.Update(w.ctx, w.name, w.spool, size)
		observe(d, "update", start)
	} else {
		err = d.Storage.Create(w.ctx, w.name, w.spool, size)
		observe(d, "create", start)
	}
	w.engine.invalidate(w.name)
	if err != nil {
		w.engine.logger.Error("Upload failed",
			corelog.User(d.User), corelog.Path(w.name), zap.Error(err))
		return pathError("write", w.name, err)
	}

	w.engine.logger.Debug("Upload stored",
		corelog.User(d.User), corelog.Path(w.name), zap.Int64("size", size))
	return nil
}

func (w *writeFile) discard() {
	name := w.spool.Name()
	w.spool.Close()
	os.Remove(name)
	w.release()
}
