// Package config defines the top-level configuration for the edition shop
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EDSHOP_* environment variables.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Shop     ShopConfig     `toml:"shop"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Key      KeyConfig      `toml:"key"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the shop runs without market cache, distributed locks, event bus
// and websocket stream, and rate limits per process.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	KeyPrefix     string   `toml:"key_prefix"`
	CacheTTL      duration `toml:"cache_ttl"`
	LockTTL       duration `toml:"lock_ttl"`
	EventsChannel string   `toml:"events_channel"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int64  `toml:"part_size_mb"`
}

// ShopConfig holds marketplace constants.
type ShopConfig struct {
	// ProgramID namespaces every derived address.
	ProgramID            string `toml:"program_id"`
	NameMaxLen           int    `toml:"name_max_len"`
	DescriptionMaxLen    int    `toml:"description_max_len"`
	MinimumNativeBalance uint64 `toml:"minimum_native_balance"`
}

// ArchiveConfig controls the audit log archive job.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the number of requests one client IP may issue per
	// RateWindow. Zero disables limiting.
	RateLimit       int        `toml:"rate_limit"`
	RateWindow      duration   `toml:"rate_window"`
	AllowDeposit    bool       `toml:"allow_deposit"`
	ShutdownTimeout duration   `toml:"shutdown_timeout"`
	Auth            AuthConfig `toml:"auth"`
}

// AuthConfig holds request signature parameters.
type AuthConfig struct {
	// Insecure trusts the caller address header without a signature. Only for
	// local development.
	Insecure      bool     `toml:"insecure"`
	MaxSkew       duration `toml:"max_skew"`
	DomainName    string   `toml:"domain_name"`
	DomainVersion string   `toml:"domain_version"`
	ChainID       int64    `toml:"chain_id"`
}

// KeyConfig points at the operator key used by the sign command.
type KeyConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{Driver: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "editionshop",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			KeyPrefix:     "edshop",
			CacheTTL:      duration{5 * time.Minute},
			LockTTL:       duration{10 * time.Second},
			EventsChannel: "shop.events",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "editionshop-archive",
			ForcePathStyle: true,
			PartSizeMB:     5,
		},
		Shop: ShopConfig{
			NameMaxLen:           40,
			DescriptionMaxLen:    60,
			MinimumNativeBalance: 890_880,
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{10 * time.Second},
			Auth: AuthConfig{
				MaxSkew:       duration{5 * time.Minute},
				DomainName:    "EditionShop",
				DomainVersion: "1",
				ChainID:       1,
			},
		},
		Notify: NotifyConfig{
			Events: []string{"sale", "payout", "market_closed"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ArchiveScheduled reports whether the archive job runs in the configured
// mode.
func (c *Config) ArchiveScheduled() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "archive" || (mode == "full" && c.Archive.Enabled)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: memory, postgres)", c.Storage.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.EventsChannel == "" {
			errs = append(errs, "redis: events_channel must not be empty")
		}
	}

	// S3 and archive
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.ArchiveScheduled() {
		if !c.S3.Enabled {
			errs = append(errs, "archive: s3.enabled is required to archive the audit log")
		}
		if _, err := cron.ParseStandard(c.Archive.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("archive: invalid cron %q: %v", c.Archive.Cron, err))
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Shop
	if c.Shop.ProgramID != "" && !common.IsHexAddress(c.Shop.ProgramID) {
		errs = append(errs, fmt.Sprintf("shop: program_id %q is not a hex address", c.Shop.ProgramID))
	}
	if c.Shop.NameMaxLen < 1 {
		errs = append(errs, "shop: name_max_len must be >= 1")
	}
	if c.Shop.DescriptionMaxLen < 1 {
		errs = append(errs, "shop: description_max_len must be >= 1")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}
	if !c.Server.Auth.Insecure && c.Server.Auth.DomainName == "" {
		errs = append(errs, "server.auth: domain_name must not be empty")
	}

	// Key
	if c.Key.EncryptedKeyPath != "" && c.Key.KeyPassword == "" {
		errs = append(errs, "key: key_password is required when encrypted_key_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
