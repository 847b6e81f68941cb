// Package handlers provides HTTP handlers for analysis operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/modules/aggregation"
)

// Handler handles analysis HTTP requests
type Handler struct {
	aggregator *aggregation.Aggregator
	log        zerolog.Logger
}

// NewHandler creates a new analysis handler
func NewHandler(aggregator *aggregation.Aggregator, log zerolog.Logger) *Handler {
	return &Handler{
		aggregator: aggregator,
		log:        log.With().Str("handler", "analysis").Logger(),
	}
}

// HandleAnalyzeSymbol handles GET /api/analysis/{symbol}
func (h *Handler) HandleAnalyzeSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}

	result, err := h.aggregator.Analyze(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Analysis failed")
		http.Error(w, "Analysis failed", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": result,
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
