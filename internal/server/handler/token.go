package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

// TokenService is what TokenHandler needs from the service layer.
type TokenService interface {
	CreateResource(ctx context.Context, req service.CreateResourceRequest) (service.Resource, error)
	Deposit(ctx context.Context, req service.DepositRequest) (domain.TokenAccount, error)
	GetAccount(ctx context.Context, addr common.Address) (domain.TokenAccount, error)
	GetMetadata(ctx context.Context, mint common.Address) (domain.Metadata, error)
}

// TokenHandler serves resource minting and token account endpoints.
type TokenHandler struct {
	tokens       TokenService
	allowDeposit bool
	logger       *slog.Logger
}

// NewTokenHandler creates a TokenHandler. Deposits are refused unless
// allowDeposit is set.
func NewTokenHandler(tokens TokenService, allowDeposit bool, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, allowDeposit: allowDeposit, logger: logger}
}

type createResourceBody struct {
	Name                 string           `json:"name"`
	URI                  string           `json:"uri"`
	SellerFeeBasisPoints uint16           `json:"seller_fee_basis_points"`
	Creators             []domain.Creator `json:"creators"`
	MaxSupply            *uint64          `json:"max_supply"`
	Immutable            bool             `json:"immutable"`
}

// CreateResource mints a master edition to the caller.
// POST /api/resources
func (h *TokenHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	creator, ok := caller(w, r)
	if !ok {
		return
	}
	var body createResourceBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.tokens.CreateResource(r.Context(), service.CreateResourceRequest{
		Creator:              creator,
		Name:                 body.Name,
		URI:                  body.URI,
		SellerFeeBasisPoints: body.SellerFeeBasisPoints,
		Creators:             body.Creators,
		MaxSupply:            body.MaxSupply,
		Immutable:            body.Immutable,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create resource", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewResource(res))
}

// GetMetadata returns the metadata of a resource mint.
// GET /api/resources/{mint}/metadata
func (h *TokenHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	md, err := h.tokens.GetMetadata(r.Context(), mint)
	if err != nil {
		writeServiceError(w, r, h.logger, "get metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, viewMetadata(md))
}

type depositBody struct {
	Mint   common.Address `json:"mint"`
	Amount uint64         `json:"amount"`
}

// Deposit credits the caller's associated account for a mint.
// POST /api/accounts/deposit
func (h *TokenHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	if !h.allowDeposit {
		writeError(w, http.StatusForbidden, "deposits are disabled")
		return
	}
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var body depositBody
	if !decodeJSON(w, r, &body) {
		return
	}
	acc, err := h.tokens.Deposit(r.Context(), service.DepositRequest{Owner: owner, Mint: body.Mint, Amount: body.Amount})
	if err != nil {
		writeServiceError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(acc))
}

// GetAccount returns one token account.
// GET /api/accounts/{address}
func (h *TokenHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	acc, err := h.tokens.GetAccount(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(acc))
}
