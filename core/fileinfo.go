package core

import (
	"context"
	"io/fs"
	"path"
	"strconv"
	"time"

	"golang.org/x/net/webdav"

	"github.com/ebogdum/davgate/metadata"
)

// fileInfo adapts metadata to fs.FileInfo. It also implements
// webdav.ETager and webdav.ContentTyper so PROPFIND reuses what the backend
// already reported instead of reading content.
type fileInfo struct {
	md *metadata.Metadata
}

var (
	_ webdav.ETager       = fileInfo{}
	_ webdav.ContentTyper = fileInfo{}
)

func newFileInfo(md *metadata.Metadata) fileInfo {
	return fileInfo{md: md}
}

func baseName(name string) string {
	if name == "/" {
		return "/"
	}
	return path.Base(name)
}

func (fi fileInfo) Name() string       { return baseName(fi.md.Path) }
func (fi fileInfo) Size() int64        { return fi.md.Size }
func (fi fileInfo) ModTime() time.Time { return fi.md.MTime }
func (fi fileInfo) IsDir() bool        { return fi.md.IsDir() }
func (fi fileInfo) Sys() any           { return fi.md }

func (fi fileInfo) Mode() fs.FileMode {
	perm := fs.FileMode(0644)
	if fi.md.IsDir() {
		perm = 0755
	}
	if parsed, err := strconv.ParseUint(fi.md.Mode, 8, 32); err == nil && fi.md.Mode != "" {
		perm = fs.FileMode(parsed) & fs.ModePerm
	}
	if fi.md.IsDir() {
		return fs.ModeDir | perm
	}
	return perm
}

func (fi fileInfo) ETag(context.Context) (string, error) {
	if fi.md.ETag == "" || fi.md.IsDir() {
		return "", webdav.ErrNotImplemented
	}
	return fi.md.ETag, nil
}

func (fi fileInfo) ContentType(context.Context) (string, error) {
	if fi.md.ContentType == "" {
		return "", webdav.ErrNotImplemented
	}
	return fi.md.ContentType, nil
}
