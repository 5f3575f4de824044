package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultAppConfigIsValid(t *testing.T) {
	cfg := DefaultAppConfig()
	require.NoError(t, Validate(&cfg))
	assert.Equal(t, "davgate", cfg.Auth.Realm)
}

func TestLoadConfigFromFile_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  listen_addr: ":9999"
  prefix: /dav
auth:
  realm: irods
backend:
  type: s3
  s3_bucket_name: files
  s3_endpoint: http://minio:9000
  op_timeout: 3s
`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, "/dav", cfg.Server.Prefix)
	assert.Equal(t, "irods", cfg.Auth.Realm)
	assert.Equal(t, "s3", cfg.Backend.Type)
	assert.Equal(t, "files", cfg.Backend.S3BucketName)
	assert.Equal(t, 3*time.Second, cfg.Backend.OpTimeout)
	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
}

func TestLoadConfigFromFile_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"auth": {"realm": "files"}, "accounts": {"type": "redis", "redis_addr": "cache:6379"}}`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "files", cfg.Auth.Realm)
	assert.Equal(t, "redis", cfg.Accounts.Type)
	assert.Equal(t, "cache:6379", cfg.Accounts.RedisAddr)
}

func TestLoadConfigFromFile_EnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "auth:\n  realm: fromfile\n")
	t.Setenv("DAVGATE_AUTH_REALM", "fromenv")
	t.Setenv("DAVGATE_SERVER_LISTEN_ADDR", ":7070")
	t.Setenv("DAVGATE_RATE_LIMIT_BURST", "5")
	t.Setenv("DAVGATE_STAT_CACHE_TTL", "10s")
	t.Setenv("DAVGATE_UNKNOWN_THING", "ignored")

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Auth.Realm)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, 10*time.Second, cfg.StatCache.TTL)
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfigFromFile(writeFile(t, "config.toml", "x = 1"))
	assert.ErrorContains(t, err, "unsupported config file format")

	_, err = LoadConfigFromFile(writeFile(t, "config.yaml", "backend:\n  type: ftp\n"))
	assert.ErrorContains(t, err, "backend.type")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"DAVGATE_SERVER_LISTEN_ADDR":             "server.listen_addr",
		"DAVGATE_RATE_LIMIT_REQUESTS_PER_SECOND": "rate_limit.requests_per_second",
		"DAVGATE_BACKEND_S3_BUCKET_NAME":         "backend.s3_bucket_name",
		"DAVGATE_LOG_LEVEL":                      "log.level",
		"DAVGATE_ACCOUNT_PASSWORD":               "",
		"DAVGATE_SERVER":                         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"missing listen addr", func(c *AppConfig) { c.Server.ListenAddr = "" }, "server.listen_addr"},
		{"cert without key", func(c *AppConfig) { c.Server.CertFile = "a.crt" }, "cert_file"},
		{"relative prefix", func(c *AppConfig) { c.Server.Prefix = "dav" }, "server.prefix"},
		{"empty realm", func(c *AppConfig) { c.Auth.Realm = "" }, "auth.realm"},
		{"quoted realm", func(c *AppConfig) { c.Auth.Realm = `a"b` }, "auth.realm"},
		{"negative rate", func(c *AppConfig) { c.RateLimit.RequestsPerSecond = -1 }, "rate_limit"},
		{"rate without burst", func(c *AppConfig) { c.RateLimit.Burst = 0 }, "rate_limit.burst"},
		{"s3 without bucket", func(c *AppConfig) { c.Backend.Type = "s3" }, "s3_bucket_name"},
		{"localfs without root", func(c *AppConfig) { c.Backend.LocalFSRootPath = "" }, "localfs_root_path"},
		{"unknown account store", func(c *AppConfig) { c.Accounts.Type = "ldap" }, "accounts.type"},
		{"postgres without dsn", func(c *AppConfig) { c.Accounts.Type = "postgres"; c.Accounts.DSN = "" }, "accounts.dsn"},
		{"zero op timeout", func(c *AppConfig) { c.Backend.OpTimeout = 0 }, "op_timeout"},
		{"redis locks without addr", func(c *AppConfig) { c.Locks.Type = "redis" }, "locks.redis_addr"},
		{"unknown locks", func(c *AppConfig) { c.Locks.Type = "etcd" }, "locks.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("s3 ignores accounts", func(t *testing.T) {
		cfg := DefaultAppConfig()
		cfg.Backend.Type = "s3"
		cfg.Backend.S3BucketName = "b"
		cfg.Accounts.Type = ""
		assert.NoError(t, Validate(&cfg))
	})
}
