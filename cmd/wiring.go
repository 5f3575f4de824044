package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ebogdum/davgate/accounts"
	pgaccounts "github.com/ebogdum/davgate/accounts/postgres"
	redisaccounts "github.com/ebogdum/davgate/accounts/redis"
	"github.com/ebogdum/davgate/accounts/sqlite"
	"github.com/ebogdum/davgate/auth"
	"github.com/ebogdum/davgate/backends/localfs"
	"github.com/ebogdum/davgate/backends/s3"
	"github.com/ebogdum/davgate/config"
	"github.com/ebogdum/davgate/locks"
)

// openAccountStore opens the account store selected by cfg.Type.
func openAccountStore(ctx context.Context, cfg config.AccountsConfig, logger *zap.Logger) (accounts.Store, error) {
	var (
		store accounts.Store
		err   error
	)
	switch cfg.Type {
	case "sqlite":
		store, err = sqlite.NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		store, err = pgaccounts.NewStore(ctx, cfg.DSN, logger)
	case "redis":
		store, err = redisaccounts.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix, logger)
	default:
		return nil, fmt.Errorf("unknown account store type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s account store: %w", cfg.Type, err)
	}
	return store, nil
}

func accountStoreLocation(cfg config.AccountsConfig) string {
	switch cfg.Type {
	case "sqlite":
		return cfg.SQLitePath
	case "postgres":
		return maskDSN(cfg.DSN)
	case "redis":
		return cfg.RedisAddr
	}
	return ""
}

// newBackendAuthenticator builds the authenticator for cfg.Backend.Type. The
// returned func releases what the authenticator holds.
func newBackendAuthenticator(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (auth.BackendAuthenticator, func(), error) {
	switch cfg.Backend.Type {
	case "s3":
		logger.Info("Using S3 backend",
			zap.String("bucket", cfg.Backend.S3BucketName),
			zap.String("region", cfg.Backend.S3Region))
		return s3.NewAuthenticator(cfg.Backend, logger), func() {}, nil

	case "localfs":
		store, err := openAccountStore(ctx, cfg.Accounts, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using LocalFS backend",
			zap.String("root_path", cfg.Backend.LocalFSRootPath),
			zap.String("accounts", cfg.Accounts.Type))
		closeStore := func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close account store", zap.Error(err))
			}
		}
		return localfs.NewAuthenticator(cfg.Backend.LocalFSRootPath, store, logger), closeStore, nil
	}
	return nil, nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
}

// newLockManager builds the write lock manager for cfg.Type.
func newLockManager(cfg config.LocksConfig, logger *zap.Logger) (locks.Manager, error) {
	switch cfg.Type {
	case "local":
		return locks.NewLocalManager(), nil
	case "redis":
		logger.Info("Using Redis lock manager", zap.String("addr", cfg.RedisAddr))
		m, err := locks.NewRedisManager(cfg.RedisAddr, cfg.RedisPassword, cfg.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize lock manager: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown lock manager type %q", cfg.Type)
}
