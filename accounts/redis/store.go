package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/accounts"
	corelog "github.com/ebogdum/davgate/core/log"
)

const defaultPrefix = "davgate:"

// RedisStore keeps each account as a JSON value and the set of usernames in
// an index key.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

var _ accounts.Store = (*RedisStore)(nil)

func NewRedisStore(addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis account store: %w", err)
	}
	return NewRedisStoreFromClient(client, prefix, logger), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger.Named("accounts.redis")}
}

func (s *RedisStore) Get(ctx context.Context, username string) (*accounts.Account, error) {
	raw, err := s.client.Get(ctx, s.accountKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	var a accounts.Account
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &a, nil
}

func (s *RedisStore) Create(ctx context.Context, a *accounts.Account) error {
	if err := accounts.ValidateUsername(a.Username); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}

	stored, err := s.client.SetNX(ctx, s.accountKey(a.Username), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if !stored {
		return accounts.ErrAlreadyExists
	}

	if err := s.client.SAdd(ctx, s.indexKey(), a.Username).Err(); err != nil {
		return fmt.Errorf("failed to index account: %w", err)
	}

	s.logger.Info("Account created", corelog.User(a.Username))
	return nil
}

func (s *RedisStore) Update(ctx context.Context, a *accounts.Account) error {
	existing, err := s.Get(ctx, a.Username)
	if err != nil {
		return err
	}

	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}

	// SetXX so an account deleted since the Get is not recreated.
	updated, err := s.client.SetXX(ctx, s.accountKey(a.Username), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if !updated {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, username string) error {
	n, err := s.client.Del(ctx, s.accountKey(username)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n == 0 {
		return accounts.ErrNotFound
	}
	if err := s.client.SRem(ctx, s.indexKey(), username).Err(); err != nil {
		return fmt.Errorf("failed to remove account index: %w", err)
	}

	s.logger.Info("Account deleted", corelog.User(username))
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*accounts.Account, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	sort.Strings(names)

	out := make([]*accounts.Account, 0, len(names))
	for _, name := range names {
		a, err := s.Get(ctx, name)
		if err != nil {
			if errors.Is(err, accounts.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) accountKey(username string) string {
	return s.prefix + "account:" + username
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "accounts"
}
