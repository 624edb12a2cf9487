// Package server exposes the shop operations over HTTP and streams events
// over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/metrics"
	"github.com/alanyoungcy/editionshop/internal/server/handler"
	"github.com/alanyoungcy/editionshop/internal/server/middleware"
	"github.com/alanyoungcy/editionshop/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	Auth        middleware.AuthConfig
	// RateLimit is requests per RateWindow per client IP. Zero disables
	// limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers registered by the server.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Stores    *handler.StoreHandler
	Resources *handler.ResourceHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Payouts   *handler.PayoutHandler
	Tokens    *handler.TokenHandler
	Derive    *handler.DeriveHandler
}

// Server is the HTTP and websocket API of the shop.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain. hub and
// limiter may be nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, h, hub, limiter, m, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler returns the routed handler without a listener.
func NewHandler(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.Auth(cfg.Auth)
	signed := func(f http.HandlerFunc) http.Handler { return authed(f) }

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", h.Health.Ready)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	mux.HandleFunc("POST /api/derive", h.Derive.Derive)

	mux.Handle("POST /api/stores", signed(h.Stores.CreateStore))
	mux.HandleFunc("GET /api/stores/{address}", h.Stores.GetStore)
	mux.HandleFunc("GET /api/stores/{address}/markets", h.Markets.ListMarkets)

	mux.Handle("POST /api/resources", signed(h.Tokens.CreateResource))
	mux.HandleFunc("GET /api/resources/{mint}/metadata", h.Tokens.GetMetadata)
	mux.Handle("POST /api/resources/{mint}/primary-creators", signed(h.Resources.SavePrimaryMetadataCreators))
	mux.HandleFunc("GET /api/resources/{mint}/primary-creators", h.Resources.GetPrimaryMetadataCreators)

	mux.Handle("POST /api/selling-resources", signed(h.Resources.InitSellingResource))
	mux.HandleFunc("GET /api/selling-resources/{address}", h.Resources.GetSellingResource)

	mux.Handle("POST /api/markets", signed(h.Markets.CreateMarket))
	mux.HandleFunc("GET /api/markets/{address}", h.Markets.GetMarket)
	mux.Handle("PATCH /api/markets/{address}", signed(h.Markets.ChangeMarket))
	mux.Handle("POST /api/markets/{address}/close", signed(h.Markets.CloseMarket))
	mux.Handle("POST /api/markets/{address}/buy", signed(h.Trades.Buy))
	mux.HandleFunc("GET /api/markets/{address}/trade-history/{wallet}", h.Trades.GetTradeHistory)
	mux.Handle("POST /api/markets/{address}/withdraw", signed(h.Payouts.Withdraw))
	mux.HandleFunc("GET /api/markets/{address}/payouts", h.Payouts.ListPayoutTickets)
	mux.HandleFunc("GET /api/markets/{address}/payouts/{funder}", h.Payouts.GetPayoutTicket)
	mux.Handle("POST /api/markets/{address}/claim", signed(h.Resources.ClaimResource))

	mux.Handle("POST /api/accounts/deposit", signed(h.Tokens.Deposit))
	mux.HandleFunc("GET /api/accounts/{address}", h.Tokens.GetAccount)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var out http.Handler = m.InstrumentHandler(mux)
	if limiter != nil && cfg.RateLimit > 0 {
		out = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(out)
	}
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones within the
// ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
