// Package handlers provides HTTP handlers for reconciliation operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/modules/reconciliation"
)

// Handler handles reconciliation HTTP requests
type Handler struct {
	engine *reconciliation.Engine
	repo   *reconciliation.Repository
	log    zerolog.Logger
}

// NewHandler creates a new reconciliation handler
func NewHandler(engine *reconciliation.Engine, repo *reconciliation.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		repo:   repo,
		log:    log.With().Str("handler", "reconciliation").Logger(),
	}
}

// HandleGetRecent handles GET /api/reconciliation/log
func (h *Handler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.Recent(50)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get reconciliation log")
		http.Error(w, "Failed to get reconciliation log", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": entries,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(entries),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleRunPass handles POST /api/reconciliation/run
func (h *Handler) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Reconciliation pass failed")
		http.Error(w, "Reconciliation pass failed", http.StatusBadGateway)
		return
	}

	response := map[string]interface{}{
		"data": entry,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
