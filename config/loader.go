package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g.
// DAVGATE_SERVER_LISTEN_ADDR or DAVGATE_RATE_LIMIT_BURST.
const EnvPrefix = "DAVGATE_"

var sections = []string{
	"server", "auth", "log", "metrics", "rate_limit",
	"backend", "accounts", "locks", "stat_cache",
}

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile is LoadConfig with an explicit config file.
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := loadFile(k, configFilePath); err != nil {
			return AppConfig{}, err
		}
	} else {
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := loadFile(k, configFile); err != nil {
					return AppConfig{}, err
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		parser = yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps DAVGATE_RATE_LIMIT_BURST to rate_limit.burst. Only the section
// boundary becomes a dot; underscores inside field names are kept.
// Variables that name no section are dropped.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return ""
}

// Validate checks that the configuration is complete and consistent.
func Validate(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}
	if !strings.HasPrefix(cfg.Server.Prefix, "/") {
		return fmt.Errorf("server.prefix must start with /")
	}

	if cfg.Auth.Realm == "" {
		return fmt.Errorf("auth.realm is required")
	}
	if strings.ContainsAny(cfg.Auth.Realm, "\"\r\n") {
		return fmt.Errorf("auth.realm must not contain quotes or line breaks")
	}

	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate limiting is enabled")
	}

	switch cfg.Backend.Type {
	case "s3":
		if cfg.Backend.S3BucketName == "" {
			return fmt.Errorf("backend.s3_bucket_name is required for the s3 backend")
		}
	case "localfs":
		if cfg.Backend.LocalFSRootPath == "" {
			return fmt.Errorf("backend.localfs_root_path is required for the localfs backend")
		}
		if err := validateAccounts(&cfg.Accounts); err != nil {
			return err
		}
	default:
		return fmt.Errorf("backend.type must be s3 or localfs, got %q", cfg.Backend.Type)
	}
	if cfg.Backend.OpTimeout <= 0 {
		return fmt.Errorf("backend.op_timeout must be positive")
	}

	switch cfg.Locks.Type {
	case "local":
	case "redis":
		if cfg.Locks.RedisAddr == "" {
			return fmt.Errorf("locks.redis_addr is required for redis locks")
		}
	default:
		return fmt.Errorf("locks.type must be local or redis, got %q", cfg.Locks.Type)
	}
	if cfg.Locks.TTL <= 0 {
		return fmt.Errorf("locks.ttl must be positive")
	}

	if cfg.StatCache.TTL < 0 || cfg.StatCache.MaxEntries < 0 {
		return fmt.Errorf("stat_cache values must not be negative")
	}

	return nil
}

func validateAccounts(cfg *AccountsConfig) error {
	switch cfg.Type {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return fmt.Errorf("accounts.sqlite_path is required for the sqlite account store")
		}
	case "postgres":
		if cfg.DSN == "" {
			return fmt.Errorf("accounts.dsn is required for the postgres account store")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return fmt.Errorf("accounts.redis_addr is required for the redis account store")
		}
	default:
		return fmt.Errorf("accounts.type must be sqlite, postgres or redis, got %q", cfg.Type)
	}
	return nil
}
