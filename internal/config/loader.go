package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRAILBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRAILBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "TRAILBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRAILBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRAILBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TRAILBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRAILBOT_SERVER_RATE_WINDOW")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "TRAILBOT_STORAGE_BACKEND")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRAILBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRAILBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRAILBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRAILBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRAILBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRAILBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRAILBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRAILBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRAILBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRAILBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRAILBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRAILBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRAILBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRAILBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRAILBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRAILBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Oracle ──
	setStr(&cfg.Oracle.PriceHost, "TRAILBOT_ORACLE_PRICE_HOST")
	setStr(&cfg.Oracle.TokenHost, "TRAILBOT_ORACLE_TOKEN_HOST")
	setDuration(&cfg.Oracle.Timeout, "TRAILBOT_ORACLE_TIMEOUT")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "TRAILBOT_FEED_ENABLED")
	setStr(&cfg.Feed.WsURL, "TRAILBOT_FEED_WS_URL")

	// ── Executor ──
	setInt64(&cfg.Executor.MaxConcurrent, "TRAILBOT_EXECUTOR_MAX_CONCURRENT")
	setDuration(&cfg.Executor.DedupTTL, "TRAILBOT_EXECUTOR_DEDUP_TTL")
	setInt(&cfg.Executor.BatchBuffer, "TRAILBOT_EXECUTOR_BATCH_BUFFER")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRAILBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRAILBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRAILBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRAILBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRAILBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRAILBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRAILBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRAILBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRAILBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRAILBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRAILBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRAILBOT_NOTIFY_EVENTS")

	// ── Admin ──
	setInt64(&cfg.Admin.SuperAdminID, "TRAILBOT_ADMIN_SUPER_ADMIN_ID")
	setInt64Slice(&cfg.Admin.AdminIDs, "TRAILBOT_ADMIN_ADMIN_IDS")

	// ── Top-level ──
	setStr(&cfg.Environment, "TRAILBOT_ENVIRONMENT")
	setStr(&cfg.LogLevel, "TRAILBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setInt64Slice(dst *[]int64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]int64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if n, err := strconv.ParseInt(p, 10, 64); err == nil {
				cleaned = append(cleaned, n)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
