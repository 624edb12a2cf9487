package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

// ResourceService is what ResourceHandler needs from the service layer.
type ResourceService interface {
	InitSellingResource(ctx context.Context, req service.InitSellingResourceRequest) (domain.SellingResource, error)
	GetSellingResource(ctx context.Context, addr common.Address) (domain.SellingResource, error)
	SavePrimaryMetadataCreators(ctx context.Context, req service.SavePrimaryMetadataCreatorsRequest) (domain.PrimaryMetadataCreators, error)
	GetPrimaryMetadataCreators(ctx context.Context, resource common.Address) (domain.PrimaryMetadataCreators, error)
	ClaimResource(ctx context.Context, req service.ClaimResourceRequest) (domain.SellingResource, error)
}

// ResourceHandler serves selling resource and primary creators endpoints.
type ResourceHandler struct {
	resources ResourceService
	logger    *slog.Logger
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(resources ResourceService, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{resources: resources, logger: logger}
}

type initSellingResourceBody struct {
	Store          common.Address  `json:"store"`
	Owner          *common.Address `json:"owner"`
	Resource       common.Address  `json:"resource"`
	ResourceToken  common.Address  `json:"resource_token"`
	VaultOwnerBump uint8           `json:"vault_owner_bump"`
	MaxSupply      *uint64         `json:"max_supply"`
}

// InitSellingResource escrows a master edition into a store. The caller is
// the store admin; the owner defaults to the caller.
// POST /api/selling-resources
func (h *ResourceHandler) InitSellingResource(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	var body initSellingResourceBody
	if !decodeJSON(w, r, &body) {
		return
	}
	owner := admin
	if body.Owner != nil {
		owner = *body.Owner
	}
	sr, err := h.resources.InitSellingResource(r.Context(), service.InitSellingResourceRequest{
		Store:          body.Store,
		Admin:          admin,
		Owner:          owner,
		Resource:       body.Resource,
		ResourceToken:  body.ResourceToken,
		VaultOwnerBump: body.VaultOwnerBump,
		MaxSupply:      body.MaxSupply,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "init selling resource", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewSellingResource(sr))
}

// GetSellingResource returns one selling resource.
// GET /api/selling-resources/{address}
func (h *ResourceHandler) GetSellingResource(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	sr, err := h.resources.GetSellingResource(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get selling resource", err)
		return
	}
	writeJSON(w, http.StatusOK, viewSellingResource(sr))
}

type savePrimaryCreatorsBody struct {
	Bump     uint8            `json:"bump"`
	Creators []domain.Creator `json:"creators"`
}

// SavePrimaryMetadataCreators snapshots the primary sale recipients of a
// resource. The caller must be its metadata update authority.
// POST /api/resources/{mint}/primary-creators
func (h *ResourceHandler) SavePrimaryMetadataCreators(w http.ResponseWriter, r *http.Request) {
	authority, ok := caller(w, r)
	if !ok {
		return
	}
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	var body savePrimaryCreatorsBody
	if !decodeJSON(w, r, &body) {
		return
	}
	p, err := h.resources.SavePrimaryMetadataCreators(r.Context(), service.SavePrimaryMetadataCreatorsRequest{
		Resource:        mint,
		UpdateAuthority: authority,
		Bump:            body.Bump,
		Creators:        body.Creators,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "save primary creators", err)
		return
	}
	writeJSON(w, http.StatusCreated, primaryCreatorsView{Address: p.Address, Metadata: p.Metadata, Creators: p.Creators})
}

// GetPrimaryMetadataCreators returns the snapshot of a resource.
// GET /api/resources/{mint}/primary-creators
func (h *ResourceHandler) GetPrimaryMetadataCreators(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	p, err := h.resources.GetPrimaryMetadataCreators(r.Context(), mint)
	if err != nil {
		writeServiceError(w, r, h.logger, "get primary creators", err)
		return
	}
	writeJSON(w, http.StatusOK, primaryCreatorsView{Address: p.Address, Metadata: p.Metadata, Creators: p.Creators})
}

type claimResourceBody struct {
	Destination    common.Address `json:"destination"`
	VaultOwnerBump uint8          `json:"vault_owner_bump"`
}

// ClaimResource returns the escrowed master edition to the caller once the
// market is closed and fully paid out.
// POST /api/markets/{address}/claim
func (h *ResourceHandler) ClaimResource(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	market, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var body claimResourceBody
	if !decodeJSON(w, r, &body) {
		return
	}
	sr, err := h.resources.ClaimResource(r.Context(), service.ClaimResourceRequest{
		Market:         market,
		Owner:          owner,
		Destination:    body.Destination,
		VaultOwnerBump: body.VaultOwnerBump,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "claim resource", err)
		return
	}
	writeJSON(w, http.StatusOK, viewSellingResource(sr))
}
