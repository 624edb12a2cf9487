package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/server"
	"github.com/alanyoungcy/editionshop/internal/server/handler"
	"github.com/alanyoungcy/editionshop/internal/server/middleware"
	"github.com/alanyoungcy/editionshop/internal/server/ws"
)

// ServeMode starts the HTTP API and, when an event bus is wired, the websocket
// hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the audit archive schedule.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiver(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return g.Wait()
}

// FullMode starts the HTTP API and, when archive.enabled is set, the archive
// schedule.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	if a.cfg.ArchiveScheduled() {
		if err := a.startArchiver(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}
	return g.Wait()
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	shop := deps.Shop
	h := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Pingers, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Storage.Driver, deps.Deriver.Program(), Version),
		Stores:    handler.NewStoreHandler(shop.Stores, a.logger),
		Resources: handler.NewResourceHandler(shop.Resources, a.logger),
		Markets:   handler.NewMarketHandler(shop.Markets, time.Now, a.logger),
		Trades:    handler.NewTradeHandler(shop.Trades, a.logger),
		Payouts:   handler.NewPayoutHandler(shop.Payouts, a.logger),
		Tokens:    handler.NewTokenHandler(shop.Tokens, a.cfg.Server.AllowDeposit, a.logger),
		Derive:    handler.NewDeriveHandler(deps.Deriver),
	}

	// WebSocket hub requires the Redis event bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, ws.Config{
			Channel:        a.cfg.Redis.EventsChannel,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
		}, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	auth := a.cfg.Server.Auth
	if auth.Insecure {
		a.logger.WarnContext(ctx, "server.auth.insecure is set; caller addresses are not verified")
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			Domain: crypto.Domain{
				Name:    auth.DomainName,
				Version: auth.DomainVersion,
				ChainID: auth.ChainID,
			},
			MaxSkew:  auth.MaxSkew.Duration,
			Insecure: auth.Insecure,
		},
		RateLimit:  a.cfg.Server.RateLimit,
		RateWindow: a.cfg.Server.RateWindow.Duration,
	}, h, hub, deps.RateLimiter, deps.Metrics, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver schedules ArchiveAudit on the configured cron spec. Each run
// archives audit entries older than the retention window.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archiver unavailable: s3 is not enabled")
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(a.cfg.Archive.Cron, func() {
		before := time.Now().UTC().Add(-retention)
		n, err := deps.Archiver.ArchiveAudit(ctx, before)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: audit run failed", slog.String("error", err.Error()))
			return
		}
		a.logger.InfoContext(ctx, "archive: audit run complete",
			slog.Int64("entries", n),
			slog.Time("before", before),
		)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", a.cfg.Archive.Cron, err)
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "archive: scheduler started", slog.String("cron", a.cfg.Archive.Cron))
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	})
	return nil
}
