package locks

import (
	"context"
	"sync"
)

// LocalManager locks within a single process.
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

func NewLocalManager() *LocalManager {
	return &LocalManager{
		locks: make(map[string]struct{}),
	}
}

func (m *LocalManager) Acquire(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; held {
		return false, nil
	}
	m.locks[key] = struct{}{}
	return true, nil
}

// Release frees key. It runs even when ctx is done so a cancelled request
// never leaves its lock behind.
func (m *LocalManager) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; !held {
		return ErrNotHeld
	}
	delete(m.locks, key)
	return nil
}

func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]struct{})
	return nil
}
