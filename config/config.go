// Package config provides configuration management for davgate.
// It handles loading and validating configuration from YAML or JSON files
// and environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Backend   BackendConfig   `koanf:"backend"`
	Accounts  AccountsConfig  `koanf:"accounts"`
	Locks     LocksConfig     `koanf:"locks"`
	StatCache StatCacheConfig `koanf:"stat_cache"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	CertFile        string        `koanf:"cert_file"`
	KeyFile         string        `koanf:"key_file"`
	Prefix          string        `koanf:"prefix"` // URL prefix the WebDAV tree is mounted under
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Realm string `koanf:"realm"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig holds metrics configuration. /metrics is always served on
// the main listener; ListenAddr adds a dedicated one.
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// RateLimitConfig holds the global request rate limit. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// BackendConfig holds backend storage configuration
type BackendConfig struct {
	Type                   string        `koanf:"type"` // "s3" or "localfs"
	OpTimeout              time.Duration `koanf:"op_timeout"`
	LocalFSRootPath        string        `koanf:"localfs_root_path"`
	S3Region               string        `koanf:"s3_region"`
	S3BucketName           string        `koanf:"s3_bucket_name"`
	S3Endpoint             string        `koanf:"s3_endpoint"`               // Custom S3 endpoint (e.g., for MinIO)
	S3DisableSSL           bool          `koanf:"s3_disable_ssl"`            // Plain HTTP to a custom endpoint
	S3ServerSideEncryption string        `koanf:"s3_server_side_encryption"` // SSE algorithm (AES256, aws:kms)
	S3ACL                  string        `koanf:"s3_acl"`                    // Object ACL (private, public-read, etc.)
	S3KMSKeyID             string        `koanf:"s3_kms_key_id"`             // KMS key ID for SSE-KMS
}

// AccountsConfig selects the local account store used by the localfs backend
type AccountsConfig struct {
	Type           string `koanf:"type"` // "sqlite", "postgres" or "redis"
	DSN            string `koanf:"dsn"`
	SQLitePath     string `koanf:"sqlite_path"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`
}

// LocksConfig selects the write lock manager
type LocksConfig struct {
	Type          string        `koanf:"type"` // "local" or "redis"
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	TTL           time.Duration `koanf:"ttl"`
}

// StatCacheConfig controls the per-user stat cache. A zero TTL disables it.
type StatCacheConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}
