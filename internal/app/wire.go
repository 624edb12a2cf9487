package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/editionshop/internal/blob/s3"
	"github.com/alanyoungcy/editionshop/internal/cache/redis"
	"github.com/alanyoungcy/editionshop/internal/config"
	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/metrics"
	"github.com/alanyoungcy/editionshop/internal/notify"
	"github.com/alanyoungcy/editionshop/internal/server/handler"
	"github.com/alanyoungcy/editionshop/internal/server/middleware"
	"github.com/alanyoungcy/editionshop/internal/service"
	"github.com/alanyoungcy/editionshop/internal/store/memory"
	"github.com/alanyoungcy/editionshop/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Repo    domain.Repository
	Deriver *crypto.Deriver
	Shop    *service.Shop
	Metrics *metrics.Metrics

	// Optional Redis-backed adapters. SignalBus is nil without Redis.
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Archiver is nil unless S3 is enabled.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// Pingers back the readiness probe, keyed by dependency name.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Pingers: make(map[string]handler.Pinger),
	}

	program := crypto.DefaultProgramID
	if cfg.Shop.ProgramID != "" {
		program = common.HexToAddress(cfg.Shop.ProgramID)
	}
	deps.Deriver = crypto.NewDeriver(program)

	// --- Repository ---
	switch cfg.Storage.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Repo = postgres.NewRepository(pgClient.Pool())
		deps.Pingers["postgres"] = pgClient
	default:
		logger.WarnContext(ctx, "app: using in-memory storage; state is lost on restart")
		deps.Repo = memory.NewRepository()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient
	} else {
		deps.RateLimiter = middleware.NewLocalLimiter()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			deps.Repo,
			s3blob.NewWriter(s3Client, cfg.S3.PartSizeMB<<20),
			s3blob.NewReader(s3Client),
			logger,
		)
		deps.Pingers["s3"] = handler.PingFunc(s3Client.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	opts := []service.Option{
		service.WithTextLimits(domain.TextLimits{
			NameMaxLen:        cfg.Shop.NameMaxLen,
			DescriptionMaxLen: cfg.Shop.DescriptionMaxLen,
		}),
		service.WithMinimumNativeBalance(cfg.Shop.MinimumNativeBalance),
		service.WithNotifier(deps.Notifier),
		service.WithMetrics(deps.Metrics),
	}
	if deps.SignalBus != nil {
		opts = append(opts,
			service.WithSignalBus(deps.SignalBus, cfg.Redis.EventsChannel),
			service.WithLocks(deps.LockManager, cfg.Redis.LockTTL.Duration),
			service.WithMarketCache(deps.MarketCache),
		)
	}
	deps.Shop = service.NewShop(service.NewCore(deps.Repo, deps.Deriver, logger, opts...))

	return deps, cleanup, nil
}
