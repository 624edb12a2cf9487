package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

// PayoutService is what PayoutHandler needs from the service layer.
type PayoutService interface {
	Withdraw(ctx context.Context, req service.WithdrawRequest) (domain.PayoutTicket, error)
	GetPayoutTicket(ctx context.Context, market, funder common.Address) (domain.PayoutTicket, error)
	ListPayoutTickets(ctx context.Context, market common.Address) ([]domain.PayoutTicket, error)
}

// PayoutHandler serves royalty withdrawal endpoints.
type PayoutHandler struct {
	payouts PayoutService
	logger  *slog.Logger
}

// NewPayoutHandler creates a PayoutHandler.
func NewPayoutHandler(payouts PayoutService, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, logger: logger}
}

type withdrawBody struct {
	Funder            common.Address `json:"funder"`
	Destination       common.Address `json:"destination"`
	TreasuryOwnerBump uint8          `json:"treasury_owner_bump"`
	PayoutTicketBump  uint8          `json:"payout_ticket_bump"`
}

// Withdraw pays one funder its share of a closed market. The caller is the
// market owner.
// POST /api/markets/{address}/withdraw
func (h *PayoutHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	market, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var body withdrawBody
	if !decodeJSON(w, r, &body) {
		return
	}
	t, err := h.payouts.Withdraw(r.Context(), service.WithdrawRequest{
		Market:            market,
		Owner:             owner,
		Funder:            body.Funder,
		Destination:       body.Destination,
		TreasuryOwnerBump: body.TreasuryOwnerBump,
		PayoutTicketBump:  body.PayoutTicketBump,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTicket(t))
}

// GetPayoutTicket returns the ticket of one funder.
// GET /api/markets/{address}/payouts/{funder}
func (h *PayoutHandler) GetPayoutTicket(w http.ResponseWriter, r *http.Request) {
	market, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	funder, ok := pathAddress(w, r, "funder")
	if !ok {
		return
	}
	t, err := h.payouts.GetPayoutTicket(r.Context(), market, funder)
	if err != nil {
		writeServiceError(w, r, h.logger, "get payout ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, viewTicket(t))
}

// ListPayoutTickets returns every ticket issued for a market.
// GET /api/markets/{address}/payouts
func (h *PayoutHandler) ListPayoutTickets(w http.ResponseWriter, r *http.Request) {
	market, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	tickets, err := h.payouts.ListPayoutTickets(r.Context(), market)
	if err != nil {
		writeServiceError(w, r, h.logger, "list payout tickets", err)
		return
	}
	views := make([]payoutTicketView, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, viewTicket(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": views})
}
