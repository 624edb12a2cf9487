package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

// StoreService is what StoreHandler needs from the service layer.
type StoreService interface {
	CreateStore(ctx context.Context, req service.CreateStoreRequest) (domain.Store, error)
	GetStore(ctx context.Context, addr common.Address) (domain.Store, error)
}

// StoreHandler serves store endpoints.
type StoreHandler struct {
	stores StoreService
	logger *slog.Logger
}

// NewStoreHandler creates a StoreHandler.
func NewStoreHandler(stores StoreService, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{stores: stores, logger: logger}
}

type createStoreBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateStore registers a store administered by the caller.
// POST /api/stores
func (h *StoreHandler) CreateStore(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	var body createStoreBody
	if !decodeJSON(w, r, &body) {
		return
	}
	st, err := h.stores.CreateStore(r.Context(), service.CreateStoreRequest{
		Admin:       admin,
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create store", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewStore(st))
}

// GetStore returns one store.
// GET /api/stores/{address}
func (h *StoreHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	st, err := h.stores.GetStore(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get store", err)
		return
	}
	writeJSON(w, http.StatusOK, viewStore(st))
}
