// Package locks serializes writers to the same resource. The WebDAV engine
// holds a lock on a path for the lifetime of an upload, a rename or a
// recursive delete, so concurrent writers get a clean "locked" failure
// instead of interleaving backend operations.
package locks

import (
	"context"
	"errors"
)

// ErrNotHeld is returned by Release for a key this manager does not hold.
var ErrNotHeld = errors.New("lock not held")

// Manager defines the interface for write locking operations
type Manager interface {
	// Acquire attempts to take the lock for key without waiting.
	// It reports false if another writer holds it.
	Acquire(ctx context.Context, key string) (bool, error)

	// Release releases a lock previously acquired through this manager.
	Release(ctx context.Context, key string) error

	// Close releases resources held by the manager.
	Close() error
}
