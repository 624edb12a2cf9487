package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

// MarketService is what MarketHandler needs from the service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, req service.CreateMarketRequest) (domain.Market, error)
	ChangeMarket(ctx context.Context, req service.ChangeMarketRequest) (domain.Market, error)
	CloseMarket(ctx context.Context, req service.CloseMarketRequest) (domain.Market, error)
	GetMarket(ctx context.Context, addr common.Address) (domain.Market, error)
	ListMarkets(ctx context.Context, store common.Address, opts domain.ListOpts) ([]domain.Market, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	now     func() time.Time
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. now decides the reported market
// state.
func NewMarketHandler(markets MarketService, now func() time.Time, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, now: now, logger: logger}
}

type createMarketBody struct {
	SellingResource   common.Address `json:"selling_resource"`
	TreasuryMint      common.Address `json:"treasury_mint"`
	TreasuryOwnerBump uint8          `json:"treasury_owner_bump"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Mutable           bool           `json:"mutable"`
	Price             uint64         `json:"price"`
	PiecesInOneWallet *uint64        `json:"pieces_in_one_wallet"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           *time.Time     `json:"end_date"`
}

// CreateMarket opens a market over a selling resource owned by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var body createMarketBody
	if !decodeJSON(w, r, &body) {
		return
	}
	m, err := h.markets.CreateMarket(r.Context(), service.CreateMarketRequest{
		SellingResource:   body.SellingResource,
		Owner:             owner,
		TreasuryMint:      body.TreasuryMint,
		TreasuryOwnerBump: body.TreasuryOwnerBump,
		Name:              body.Name,
		Description:       body.Description,
		Mutable:           body.Mutable,
		Price:             body.Price,
		PiecesInOneWallet: body.PiecesInOneWallet,
		StartDate:         body.StartDate,
		EndDate:           body.EndDate,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewMarket(m, h.now()))
}

type changeMarketBody struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Mutable           *bool   `json:"mutable"`
	Price             *uint64 `json:"price"`
	PiecesInOneWallet *uint64 `json:"pieces_in_one_wallet"`
}

// ChangeMarket edits the terms of a market that has not started. Absent
// fields are left unchanged.
// PATCH /api/markets/{address}
func (h *MarketHandler) ChangeMarket(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var body changeMarketBody
	if !decodeJSON(w, r, &body) {
		return
	}
	m, err := h.markets.ChangeMarket(r.Context(), service.ChangeMarketRequest{
		Market:               addr,
		Owner:                owner,
		NewName:              body.Name,
		NewDescription:       body.Description,
		Mutable:              body.Mutable,
		NewPrice:             body.Price,
		NewPiecesInOneWallet: body.PiecesInOneWallet,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "change market", err)
		return
	}
	writeJSON(w, http.StatusOK, viewMarket(m, h.now()))
}

// CloseMarket ends a market.
// POST /api/markets/{address}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	m, err := h.markets.CloseMarket(r.Context(), service.CloseMarketRequest{Market: addr, Owner: owner})
	if err != nil {
		writeServiceError(w, r, h.logger, "close market", err)
		return
	}
	writeJSON(w, http.StatusOK, viewMarket(m, h.now()))
}

// GetMarket returns one market.
// GET /api/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	m, err := h.markets.GetMarket(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, viewMarket(m, h.now()))
}

type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns the markets of a store, oldest first.
// GET /api/stores/{address}/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	store, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	opts := parseListOpts(r)
	markets, err := h.markets.ListMarkets(r.Context(), store, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	now := h.now()
	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, viewMarket(m, now))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: views, Limit: opts.Limit, Offset: opts.Offset})
}
