// Package handlers provides HTTP handlers for tax lot operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/modules/taxlots"
)

// Handler handles tax lot HTTP requests
type Handler struct {
	engine *taxlots.Engine
	log    zerolog.Logger
}

// NewHandler creates a new tax lot handler
func NewHandler(engine *taxlots.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "taxlots").Logger(),
	}
}

// HandleGetLots handles GET /api/taxlots/{symbol}
func (h *Handler) HandleGetLots(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	lots, err := h.engine.OpenLots(symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get lots")
		http.Error(w, "Failed to get lots", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": lots,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(lots),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleYearEndSummary handles GET /api/taxlots/summary/{year}
func (h *Handler) HandleYearEndSummary(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}

	summary, err := h.engine.YearEndSummary(year)
	if err != nil {
		h.log.Error().Err(err).Int("year", year).Msg("Failed to build year-end summary")
		http.Error(w, "Failed to build year-end summary", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": summary,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleApplyFill handles POST /api/taxlots/fills, the manual ingestion
// path for backfills and corrections alongside the fill stream
func (h *Handler) HandleApplyFill(w http.ResponseWriter, r *http.Request) {
	var fill domain.FillEvent
	if err := json.NewDecoder(r.Body).Decode(&fill); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.engine.ApplyFill(fill); err != nil {
		h.log.Warn().Err(err).Str("fill_id", fill.ID).Msg("Fill rejected")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{"applied": true, "fill_id": fill.ID},
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
