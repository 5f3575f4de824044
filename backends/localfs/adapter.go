package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ebogdum/davgate/internal/pathutil"
	"github.com/ebogdum/davgate/metadata"
)

// LocalFSAdapter implements backends.Storage over a directory tree. Every
// name is resolved through pathutil.SafeJoin, so no name escapes rootPath.
type LocalFSAdapter struct {
	rootPath string
	logger   *zap.Logger
}

// NewLocalFSAdapter creates rootPath if needed and returns an adapter confined to it.
func NewLocalFSAdapter(rootPath string, logger *zap.Logger) (*LocalFSAdapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root path %s: %w", rootPath, err)
	}

	if _, err := os.Stat(rootPath); err != nil {
		return nil, fmt.Errorf("root path %s is not accessible: %w", rootPath, err)
	}

	return &LocalFSAdapter{
		rootPath: rootPath,
		logger:   logger,
	}, nil
}

// Root returns the directory the adapter is confined to.
func (a *LocalFSAdapter) Root() string {
	return a.rootPath
}

func (a *LocalFSAdapter) resolve(name string) (string, error) {
	full, err := pathutil.SafeJoin(a.rootPath, name)
	if err != nil {
		return "", metadata.ErrForbidden
	}
	return full, nil
}

// mapOSError converts os errors to metadata errors, keeping anything else wrapped.
func mapOSError(op, name string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return metadata.ErrNotFound
	case errors.Is(err, os.ErrExist):
		return metadata.ErrAlreadyExists
	case errors.Is(err, os.ErrPermission):
		return metadata.ErrForbidden
	}
	return fmt.Errorf("failed to %s %s: %w", op, name, err)
}

func (a *LocalFSAdapter) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath, err := a.resolve(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, mapOSError("open", name, err)
	}
	return file, nil
}

// Create writes a new file and fails with ErrAlreadyExists if name exists.
func (a *LocalFSAdapter) Create(ctx context.Context, name string, reader io.Reader, size int64) error {
	fullPath, err := a.resolve(name)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return mapOSError("create", name, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to write file content: %w", err)
	}

	a.logger.Debug("File created", zap.String("path", name), zap.Int64("size", size))
	return nil
}

// Update replaces the content of name. The new content is written next to
// the target and renamed over it, so readers never observe a partial file.
func (a *LocalFSAdapter) Update(ctx context.Context, name string, reader io.Reader, size int64) error {
	fullPath, err := a.resolve(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".davgate-*")
	if err != nil {
		return mapOSError("update", name, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush file content: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return mapOSError("update", name, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return mapOSError("update", name, err)
	}

	a.logger.Debug("File updated", zap.String("path", name), zap.Int64("size", size))
	return nil
}

// Delete removes a file or empty directory. The root itself cannot be removed.
func (a *LocalFSAdapter) Delete(ctx context.Context, name string) error {
	if clean, err := pathutil.Clean(name); err != nil || clean == "/" {
		return metadata.ErrForbidden
	}

	fullPath, err := a.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		return mapOSError("delete", name, err)
	}
	return nil
}

func (a *LocalFSAdapter) Stat(ctx context.Context, name string) (*metadata.Metadata, error) {
	fullPath, err := a.resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapOSError("stat", name, err)
	}

	clean, _ := pathutil.Clean(name)
	return fileInfoToMetadata(clean, info), nil
}

func (a *LocalFSAdapter) ListDirectory(ctx context.Context, name string) ([]*metadata.Metadata, error) {
	fullPath, err := a.resolve(name)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, mapOSError("read directory", name, err)
	}

	clean, _ := pathutil.Clean(name)
	children := make([]*metadata.Metadata, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		children = append(children, fileInfoToMetadata(path.Join(clean, entry.Name()), info))
	}
	return children, nil
}

// CreateDirectory creates a single collection. The parent must exist.
func (a *LocalFSAdapter) CreateDirectory(ctx context.Context, name string) error {
	fullPath, err := a.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Mkdir(fullPath, 0755); err != nil {
		return mapOSError("create directory", name, err)
	}
	return nil
}

// Rename moves a file or directory tree within the root. An existing
// target file is replaced; moving onto an existing directory fails.
func (a *LocalFSAdapter) Rename(ctx context.Context, oldName, newName string) error {
	oldPath, err := a.resolve(oldName)
	if err != nil {
		return err
	}
	newPath, err := a.resolve(newName)
	if err != nil {
		return err
	}

	if _, err := os.Stat(oldPath); err != nil {
		return mapOSError("rename", oldName, err)
	}
	if info, err := os.Stat(newPath); err == nil && info.IsDir() {
		return metadata.ErrAlreadyExists
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return mapOSError("rename", oldName, err)
	}

	a.logger.Debug("Renamed", zap.String("from", oldName), zap.String("to", newName))
	return nil
}

func (a *LocalFSAdapter) Close() error {
	return nil
}
