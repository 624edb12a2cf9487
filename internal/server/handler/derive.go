package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/editionshop/internal/crypto"
)

// DeriveHandler lets clients compute sub-account addresses and bumps
// without reimplementing the derivation.
type DeriveHandler struct {
	derive *crypto.Deriver
}

// NewDeriveHandler creates a DeriveHandler.
func NewDeriveHandler(derive *crypto.Deriver) *DeriveHandler {
	return &DeriveHandler{derive: derive}
}

type deriveBody struct {
	Tag   string   `json:"tag"`
	Seeds []string `json:"seeds"`
}

type deriveResponse struct {
	Address common.Address `json:"address"`
	Bump    uint8          `json:"bump"`
	Program common.Address `json:"program"`
}

// Derive returns the canonical address and bump for a tag and hex seeds.
// POST /api/derive
func (h *DeriveHandler) Derive(w http.ResponseWriter, r *http.Request) {
	var body deriveBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Tag == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}
	seeds := make([][]byte, 0, len(body.Seeds))
	for _, s := range body.Seeds {
		b, err := hexutil.Decode(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "seed "+s+": "+err.Error())
			return
		}
		seeds = append(seeds, b)
	}
	addr, bump := h.derive.Find(body.Tag, seeds...)
	writeJSON(w, http.StatusOK, deriveResponse{Address: addr, Bump: bump, Program: h.derive.Program()})
}
