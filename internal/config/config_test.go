package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "hybrid" },
			want:   "unknown mode",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "trace" },
			want:   "unknown log_level",
		},
		{
			name:   "missing postgres host without dsn",
			mutate: func(c *Config) { c.Postgres.Host = "" },
			want:   "postgres: host",
		},
		{
			name:   "pool bounds inverted",
			mutate: func(c *Config) { c.Postgres.PoolMinConns = 20 },
			want:   "pool_min_conns must not exceed",
		},
		{
			name:   "missing redis addr",
			mutate: func(c *Config) { c.Redis.Addr = "" },
			want:   "redis: addr",
		},
		{
			name: "archive without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			want: "s3: bucket",
		},
		{
			name:   "server port out of range",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			want:   "server: port",
		},
		{
			name: "rate limit without a window",
			mutate: func(c *Config) {
				c.Server.RateLimit = 10
				c.Server.RateLimitWindow = duration{}
			},
			want: "rate_limit_window",
		},
		{
			name:   "non-positive reference balance",
			mutate: func(c *Config) { c.Engine.ReferenceBalance = 0 },
			want:   "reference_balance",
		},
		{
			name:   "non-positive poll interval",
			mutate: func(c *Config) { c.Adapters.PollInterval = duration{} },
			want:   "poll_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://u:p@db:5432/copier"
	cfg.Postgres.Host = ""
	cfg.Postgres.Port = 0
	cfg.Postgres.Database = ""
	require.NoError(t, cfg.Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "hybrid"
	cfg.Redis.Addr = ""
	cfg.Engine.ReferenceBalance = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "reference_balance")
}

func TestDurationTextRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://u:supersecret@db/copier"
	cfg.Postgres.Password = "pgpass"
	cfg.Redis.Password = "redispass"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "s3secret"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.DSN)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)

	// Non-secrets survive and the original is untouched.
	assert.Equal(t, cfg.Postgres.Host, red.Postgres.Host)
	assert.Equal(t, "pgpass", cfg.Postgres.Password)

	// The redacted copy owns its slices.
	red.Notify.Events[0] = "mutated"
	assert.Equal(t, "copier.error", cfg.Notify.Events[0])
}

func TestRedactedConfigLeavesEmptySecretsEmpty(t *testing.T) {
	cfg := Defaults()
	red := RedactedConfig(&cfg)
	assert.Empty(t, red.Redis.Password)
	assert.Empty(t, red.Notify.TelegramToken)
}
