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
// built-in defaults, applies EDSHOP_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EDSHOP_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Driver, "EDSHOP_STORAGE_DRIVER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "EDSHOP_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "EDSHOP_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EDSHOP_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EDSHOP_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EDSHOP_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EDSHOP_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EDSHOP_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EDSHOP_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EDSHOP_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EDSHOP_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EDSHOP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EDSHOP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EDSHOP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EDSHOP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EDSHOP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EDSHOP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EDSHOP_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "EDSHOP_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.CacheTTL, "EDSHOP_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "EDSHOP_REDIS_LOCK_TTL")
	setStr(&cfg.Redis.EventsChannel, "EDSHOP_REDIS_EVENTS_CHANNEL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "EDSHOP_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "EDSHOP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EDSHOP_S3_REGION")
	setStr(&cfg.S3.Bucket, "EDSHOP_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EDSHOP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EDSHOP_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EDSHOP_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EDSHOP_S3_FORCE_PATH_STYLE")
	setInt64(&cfg.S3.PartSizeMB, "EDSHOP_S3_PART_SIZE_MB")

	// ── Shop ──
	setStr(&cfg.Shop.ProgramID, "EDSHOP_SHOP_PROGRAM_ID")
	setInt(&cfg.Shop.NameMaxLen, "EDSHOP_SHOP_NAME_MAX_LEN")
	setInt(&cfg.Shop.DescriptionMaxLen, "EDSHOP_SHOP_DESCRIPTION_MAX_LEN")
	setUint64(&cfg.Shop.MinimumNativeBalance, "EDSHOP_SHOP_MINIMUM_NATIVE_BALANCE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "EDSHOP_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "EDSHOP_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "EDSHOP_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "EDSHOP_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setStringSlice(&cfg.Server.CORSOrigins, "EDSHOP_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "EDSHOP_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "EDSHOP_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.AllowDeposit, "EDSHOP_SERVER_ALLOW_DEPOSIT")
	setDuration(&cfg.Server.ShutdownTimeout, "EDSHOP_SERVER_SHUTDOWN_TIMEOUT")
	setBool(&cfg.Server.Auth.Insecure, "EDSHOP_SERVER_AUTH_INSECURE")
	setDuration(&cfg.Server.Auth.MaxSkew, "EDSHOP_SERVER_AUTH_MAX_SKEW")
	setStr(&cfg.Server.Auth.DomainName, "EDSHOP_SERVER_AUTH_DOMAIN_NAME")
	setStr(&cfg.Server.Auth.DomainVersion, "EDSHOP_SERVER_AUTH_DOMAIN_VERSION")
	setInt64(&cfg.Server.Auth.ChainID, "EDSHOP_SERVER_AUTH_CHAIN_ID")

	// ── Key ──
	setStr(&cfg.Key.PrivateKey, "EDSHOP_KEY_PRIVATE_KEY")
	setStr(&cfg.Key.EncryptedKeyPath, "EDSHOP_KEY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Key.KeyPassword, "EDSHOP_KEY_PASSWORD")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EDSHOP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EDSHOP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EDSHOP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EDSHOP_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "EDSHOP_MODE")
	setStr(&cfg.LogLevel, "EDSHOP_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
