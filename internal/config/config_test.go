package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "production"

[server]
port = 9100
rate_limit = 120
rate_window = "30s"

[storage]
backend = "postgres"

[postgres]
host = "db.internal"
database = "trail"

[feed]
enabled = true
ws_url = "wss://feed.example.com/prices"

[[feed.pairs]]
token_address = "tok"
vs_token_address = "vs"

[admin]
super_admin_id = 42
admin_ids = [7, 8]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	require.Len(t, cfg.Feed.Pairs, 1)
	assert.Equal(t, "tok", cfg.Feed.Pairs[0].TokenAddress)
	assert.Equal(t, int64(42), cfg.Admin.SuperAdminID)
	assert.Equal(t, []int64{7, 8}, cfg.Admin.AdminIDs)

	// Defaults survive where the file is silent.
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(4), cfg.Executor.MaxConcurrent)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "debug"`), 0o600))

	t.Setenv("TRAILBOT_LOG_LEVEL", "warn")
	t.Setenv("TRAILBOT_STORAGE_BACKEND", "memory")
	t.Setenv("TRAILBOT_ADMIN_ADMIN_IDS", "1, 2,3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []int64{1, 2, 3}, cfg.Admin.AdminIDs)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Environment = "prod" // not a valid name
	cfg.Server.Port = 0
	cfg.Storage.Backend = "sqlite"
	cfg.Oracle.PriceHost = ""
	cfg.Executor.MaxConcurrent = 0
	cfg.Notify.TelegramToken = "token-without-chat"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
	assert.Contains(t, err.Error(), "server: port")
	assert.Contains(t, err.Error(), "storage: unknown backend")
	assert.Contains(t, err.Error(), "oracle: price_host")
	assert.Contains(t, err.Error(), "executor: max_concurrent")
	assert.Contains(t, err.Error(), "telegram_token")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "api-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "api-secret", cfg.Server.APIKey)

	// Empty fields stay empty rather than showing a placeholder.
	assert.Empty(t, red.S3.AccessKey)
}
