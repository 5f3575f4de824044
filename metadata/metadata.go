// Package metadata describes files and collections as seen through a storage backend.
package metadata

import (
	"errors"
	"time"
)

// Common metadata errors
var (
	ErrNotFound      = errors.New("metadata not found")
	ErrAlreadyExists = errors.New("metadata already exists")
	ErrForbidden     = errors.New("access forbidden")
)

// Entry types
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// Metadata represents filesystem metadata for a file or collection
type Metadata struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Type        string    `json:"type"` // "file" or "directory"
	Size        int64     `json:"size"`
	Mode        string    `json:"mode"` // Unix permissions like "0644"
	UID         int       `json:"uid"`
	GID         int       `json:"gid"`
	ATime       time.Time `json:"atime"`
	MTime       time.Time `json:"mtime"`
	CTime       time.Time `json:"ctime"`
	ContentType string    `json:"content_type,omitempty"`
	ETag        string    `json:"etag,omitempty"`
	BackendType string    `json:"backend_type"` // "localfs" or "s3"
}

// IsDir reports whether the entry is a collection.
func (m *Metadata) IsDir() bool {
	return m.Type == TypeDirectory
}
