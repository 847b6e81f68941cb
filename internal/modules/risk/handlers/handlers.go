// Package handlers provides HTTP handlers for risk operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/modules/risk"
)

// Handler handles risk HTTP requests
type Handler struct {
	scorer *risk.Scorer
	log    zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(scorer *risk.Scorer, log zerolog.Logger) *Handler {
	return &Handler{
		scorer: scorer,
		log:    log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetRiskRadar handles GET /api/risk/{symbol}
func (h *Handler) HandleGetRiskRadar(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}

	radar, err := h.scorer.ScoreSymbol(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Risk scoring failed")
		http.Error(w, "Risk scoring failed", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": radar,
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
