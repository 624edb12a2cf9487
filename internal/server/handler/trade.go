package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

// TradeService is what TradeHandler needs from the service layer.
type TradeService interface {
	Buy(ctx context.Context, req service.BuyRequest) (domain.Purchase, error)
	GetTradeHistory(ctx context.Context, market, wallet common.Address) (domain.TradeHistory, error)
}

// TradeHandler serves purchase endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

type buyBody struct {
	PaymentAccount   common.Address `json:"payment_account"`
	TradeHistoryBump uint8          `json:"trade_history_bump"`
	VaultOwnerBump   uint8          `json:"vault_owner_bump"`
}

// Buy prints one edition to the caller.
// POST /api/markets/{address}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	buyer, ok := caller(w, r)
	if !ok {
		return
	}
	market, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var body buyBody
	if !decodeJSON(w, r, &body) {
		return
	}
	p, err := h.trades.Buy(r.Context(), service.BuyRequest{
		Market:           market,
		Buyer:            buyer,
		PaymentAccount:   body.PaymentAccount,
		TradeHistoryBump: body.TradeHistoryBump,
		VaultOwnerBump:   body.VaultOwnerBump,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "buy", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewPurchase(p))
}

// GetTradeHistory returns how many copies a wallet bought in a market.
// GET /api/markets/{address}/trade-history/{wallet}
func (h *TradeHandler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	market, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	th, err := h.trades.GetTradeHistory(r.Context(), market, wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, "get trade history", err)
		return
	}
	writeJSON(w, http.StatusOK, tradeHistoryView{
		Address:       th.Address,
		Market:        th.Market,
		Wallet:        th.Wallet,
		AlreadyBought: th.AlreadyBought,
	})
}
