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
// built-in defaults, applies TSYNC_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TSYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TSYNC_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "TSYNC_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TSYNC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TSYNC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TSYNC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TSYNC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TSYNC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TSYNC_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TSYNC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TSYNC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TSYNC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TSYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TSYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TSYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TSYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TSYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TSYNC_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TSYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TSYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "TSYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TSYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TSYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TSYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TSYNC_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TSYNC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TSYNC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TSYNC_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "TSYNC_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "TSYNC_SERVER_RATE_LIMIT_WINDOW")

	// ── Engine ──
	setFloat64(&cfg.Engine.ReferenceBalance, "TSYNC_ENGINE_REFERENCE_BALANCE")
	setDuration(&cfg.Engine.HeartbeatInterval, "TSYNC_ENGINE_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Engine.LockTTL, "TSYNC_ENGINE_LOCK_TTL")
	setDuration(&cfg.Engine.ShutdownTimeout, "TSYNC_ENGINE_SHUTDOWN_TIMEOUT")

	// ── Adapters ──
	setBool(&cfg.Adapters.Mock, "TSYNC_ADAPTERS_MOCK")
	setDuration(&cfg.Adapters.HTTPTimeout, "TSYNC_ADAPTERS_HTTP_TIMEOUT")
	setDuration(&cfg.Adapters.PollInterval, "TSYNC_ADAPTERS_POLL_INTERVAL")
	setDuration(&cfg.Adapters.ReconnectBase, "TSYNC_ADAPTERS_RECONNECT_BASE")
	setDuration(&cfg.Adapters.ReconnectCap, "TSYNC_ADAPTERS_RECONNECT_CAP")
	setInt(&cfg.Adapters.ReconnectMaxAttempts, "TSYNC_ADAPTERS_RECONNECT_MAX_ATTEMPTS")
	setBool(&cfg.Adapters.EnableDiscovery, "TSYNC_ADAPTERS_ENABLE_DISCOVERY")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TSYNC_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "TSYNC_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "TSYNC_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TSYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TSYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TSYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TSYNC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TSYNC_MODE")
	setStr(&cfg.LogLevel, "TSYNC_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
