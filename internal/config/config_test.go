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
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, uint64(890_880), cfg.Shop.MinimumNativeBalance)
	assert.False(t, cfg.ArchiveScheduled())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[storage]
driver = "postgres"

[postgres]
dsn = "postgres://u:p@db:5432/shop"

[shop]
name_max_len = 32

[archive]
enabled = true
cron = "15 4 * * *"

[s3]
enabled = true

[server]
rate_window = "30s"

[server.auth]
max_skew = "2m"
`), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EDSHOP_SERVER_PORT", "9100")
	t.Setenv("EDSHOP_SHOP_MINIMUM_NATIVE_BALANCE", "1000")
	t.Setenv("EDSHOP_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("EDSHOP_REDIS_ENABLED", "not-a-bool")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/shop", cfg.Postgres.DSN)
	assert.Equal(t, 32, cfg.Shop.NameMaxLen)
	assert.Equal(t, 60, cfg.Shop.DescriptionMaxLen)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, uint64(1000), cfg.Shop.MinimumNativeBalance)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Server.Auth.MaxSkew.Duration)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.ArchiveScheduled())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage: unknown driver"},
		{"postgres without host", func(c *Config) {
			c.Storage.Driver = "postgres"
			c.Postgres.Host = ""
		}, "postgres: host"},
		{"pool bounds", func(c *Config) {
			c.Storage.Driver = "postgres"
			c.Postgres.PoolMinConns = 20
		}, "pool_min_conns must not exceed"},
		{"redis without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis: addr"},
		{"archive without s3", func(c *Config) { c.Mode = "archive" }, "s3.enabled is required"},
		{"bad cron", func(c *Config) {
			c.Mode = "archive"
			c.S3.Enabled = true
			c.Archive.Cron = "every day"
		}, "archive: invalid cron"},
		{"bad program id", func(c *Config) { c.Shop.ProgramID = "shop" }, "program_id"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"rate window", func(c *Config) { c.Server.RateWindow.Duration = 0 }, "rate_window"},
		{"key password", func(c *Config) { c.Key.EncryptedKeyPath = "/keys/op.enc" }, "key_password"},
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

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "sk"
	cfg.Key.PrivateKey = "abcd"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.S3.SecretKey)
	assert.Equal(t, redacted, out.Key.PrivateKey)
	assert.Equal(t, redacted, out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "pw", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
