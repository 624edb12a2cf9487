package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// StatusHandler reports how the service is configured.
type StatusHandler struct {
	Storage string
	Program common.Address
	Version string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(storage string, program common.Address, version string) *StatusHandler {
	return &StatusHandler{Storage: storage, Program: program, Version: version}
}

// GetStatus responds with the storage driver, program id and build version.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"storage": h.Storage,
		"program": h.Program,
		"version": h.Version,
	})
}
