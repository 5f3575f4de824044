package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	corelog "github.com/ebogdum/davgate/core/log"
)

const keyPrefix = "davgate:lock:"

// releaseScript deletes the lock only if it still carries our token, so a
// lock that expired and was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisManager shares locks between davgate instances through Redis.
// Locks expire after ttl so a crashed holder cannot block a path forever.
type RedisManager struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisManager(addr, password string, ttl time.Duration, logger *zap.Logger) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisManagerFromClient(client, ttl, logger), nil
}

func NewRedisManagerFromClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisManager{
		client: client,
		logger: logger.Named("locks"),
		ttl:    ttl,
		tokens: make(map[string]string),
	}
}

func (m *RedisManager) Acquire(ctx context.Context, key string) (bool, error) {
	token, err := newToken()
	if err != nil {
		return false, err
	}

	acquired, err := m.client.SetNX(ctx, keyPrefix+key, token, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		m.logger.Debug("Lock already held", zap.String("key", corelog.SanitizePath(key)))
		return false, nil
	}

	m.mu.Lock()
	m.tokens[key] = token
	m.mu.Unlock()

	m.logger.Debug("Lock acquired", zap.String("key", corelog.SanitizePath(key)), zap.Duration("ttl", m.ttl))
	return true, nil
}

// Release frees key. It uses a fresh context so a cancelled request still
// gives the lock back.
func (m *RedisManager) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	token, ok := m.tokens[key]
	delete(m.tokens, key)
	m.mu.Unlock()
	if !ok {
		return ErrNotHeld
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(releaseCtx, m.client, []string{keyPrefix + key}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if deleted == 0 {
		m.logger.Warn("Lock expired before release", zap.String("key", corelog.SanitizePath(key)))
	}
	return nil
}

func (m *RedisManager) Close() error {
	return m.client.Close()
}

func newToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return id.String(), nil
}
