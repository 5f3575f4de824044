package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ebogdum/davgate/auth"
	"github.com/ebogdum/davgate/config"
	"github.com/ebogdum/davgate/core"
	"github.com/ebogdum/davgate/server"
	"github.com/ebogdum/davgate/session"
)

var rootCmd = &cobra.Command{
	Use:   "davgate",
	Short: "davgate - WebDAV gateway to credentialed storage",
	Long: `davgate serves a WebDAV tree whose every request is authenticated
against the storage backend with the caller's own credentials.`,
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the davgate server",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the davgate configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd, newAccountsCmd())

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// runServer starts the davgate server and blocks until SIGINT or SIGTERM.
func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.ENOTTY) && !errors.Is(err, syscall.EINVAL) {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	logger.Info("Starting davgate server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("backend", cfg.Backend.Type))

	backend, closeBackend, err := newBackendAuthenticator(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	lockManager, err := newLockManager(cfg.Locks, logger)
	if err != nil {
		return err
	}
	defer lockManager.Close()

	stats := core.NewStatCache(cfg.StatCache.TTL, cfg.StatCache.MaxEntries)
	defer stats.Stop()

	engine := core.NewEngine(lockManager, stats, "", logger)
	cache := session.NewCache()
	gate := auth.NewGate(backend, cache, cfg.Auth.Realm, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      server.NewRouter(engine, gate, cache, &cfg, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		metricsSrv = &http.Server{
			Addr:        cfg.Metrics.ListenAddr,
			Handler:     server.NewMetricsRouter(),
			ReadTimeout: cfg.Server.ReadTimeout,
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if cfg.Server.CertFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			logger.Warn("Starting plain HTTP server; Basic credentials travel unencrypted",
				zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if metricsSrv != nil {
		eg.Go(func() error {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	// Stop every listener once a signal arrives or one of them fails.
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server forced to shutdown", zap.Error(err))
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// validateConfig validates the davgate configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "WebDAV Prefix: %s\n", cfg.Server.Prefix)
	fmt.Fprintf(out, "Realm: %s\n", cfg.Auth.Realm)
	fmt.Fprintf(out, "Backend: %s\n", cfg.Backend.Type)
	switch cfg.Backend.Type {
	case "s3":
		fmt.Fprintf(out, "S3 Bucket: %s\n", cfg.Backend.S3BucketName)
		fmt.Fprintf(out, "S3 Region: %s\n", cfg.Backend.S3Region)
		if cfg.Backend.S3Endpoint != "" {
			fmt.Fprintf(out, "S3 Endpoint: %s\n", cfg.Backend.S3Endpoint)
		}
	case "localfs":
		fmt.Fprintf(out, "Local FS Root: %s\n", cfg.Backend.LocalFSRootPath)
		fmt.Fprintf(out, "Account Store: %s (%s)\n", cfg.Accounts.Type, accountStoreLocation(cfg.Accounts))
	}
	fmt.Fprintf(out, "Locks: %s\n", cfg.Locks.Type)

	return nil
}

// maskDSN masks sensitive parts of the database DSN for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-7:]
	}
	return "***"
}

// initializeLogger creates a zap logger based on configuration
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch logCfg.Level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
