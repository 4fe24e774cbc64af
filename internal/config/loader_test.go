package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, time.Minute, cfg.Server.RateLimitWindow.Duration)
	assert.Equal(t, "tradesyncer", cfg.Postgres.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 50_000.0, cfg.Engine.ReferenceBalance)
	assert.Equal(t, 30*time.Second, cfg.Engine.HeartbeatInterval.Duration)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, 90, cfg.Archive.RetentionDays)
	assert.Equal(t, []string{"copier.error", "follower.disabled", "error"}, cfg.Notify.Events)

	require.NoError(t, cfg.Validate())
}

func TestLoadDecodesTOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mode = "engine"
log_level = "debug"

[postgres]
host = "db.internal"
port = 5433
database = "copier"

[server]
port = 9090
rate_limit = 10
rate_limit_window = "30s"

[engine]
reference_balance = 25000.0
heartbeat_interval = "10s"

[adapters]
mock = true
poll_interval = "2s"

[archive]
enabled = true
interval = "1h"
retention_days = 30

[s3]
endpoint = "http://minio:9000"
bucket = "cold"
`))
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "copier", cfg.Postgres.Database)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RateLimitWindow.Duration)
	assert.Equal(t, 25_000.0, cfg.Engine.ReferenceBalance)
	assert.Equal(t, 10*time.Second, cfg.Engine.HeartbeatInterval.Duration)
	assert.True(t, cfg.Adapters.Mock)
	assert.Equal(t, 2*time.Second, cfg.Adapters.PollInterval.Duration)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, time.Hour, cfg.Archive.Interval.Duration)
	assert.Equal(t, 30, cfg.Archive.RetentionDays)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TSYNC_POSTGRES_DSN", "postgres://u:p@db:5432/copier")
	t.Setenv("TSYNC_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TSYNC_REDIS_PASSWORD", "sekret")
	t.Setenv("TSYNC_SERVER_PORT", "8443")
	t.Setenv("TSYNC_SERVER_CORS_ORIGINS", "https://app.example.com, https://staging.example.com")
	t.Setenv("TSYNC_ENGINE_REFERENCE_BALANCE", "100000")
	t.Setenv("TSYNC_ENGINE_LOCK_TTL", "12h")
	t.Setenv("TSYNC_ADAPTERS_MOCK", "true")
	t.Setenv("TSYNC_MODE", "server")

	cfg, err := Load(writeConfig(t, `mode = "full"`))
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/copier", cfg.Postgres.DSN)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "sekret", cfg.Redis.Password)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com", "https://staging.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 100_000.0, cfg.Engine.ReferenceBalance)
	assert.Equal(t, 12*time.Hour, cfg.Engine.LockTTL.Duration)
	assert.True(t, cfg.Adapters.Mock)
	assert.Equal(t, "server", cfg.Mode, "env wins over the file")
}

func TestLoadDatabaseURLAlias(t *testing.T) {
	t.Setenv("TSYNC_DATABASE_URL", "postgres://u:p@db:5432/copier")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/copier", cfg.Postgres.DSN)
}

func TestLoadIgnoresMalformedEnvValues(t *testing.T) {
	t.Setenv("TSYNC_SERVER_PORT", "not-a-number")
	t.Setenv("TSYNC_ENGINE_HEARTBEAT_INTERVAL", "soon")
	t.Setenv("TSYNC_ADAPTERS_MOCK", "kinda")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Engine.HeartbeatInterval.Duration)
	assert.False(t, cfg.Adapters.Mock)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
