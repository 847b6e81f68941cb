// Package handlers provides HTTP handlers for alert execution operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/modules/executions"
)

// Handler handles alert execution HTTP requests
type Handler struct {
	repo *executions.Repository
	log  zerolog.Logger
}

// NewHandler creates a new executions handler
func NewHandler(repo *executions.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "executions").Logger(),
	}
}

type createRequest struct {
	Strategy        string  `json:"strategy"`
	Symbol          string  `json:"symbol"`
	AlertConfidence float64 `json:"alert_confidence"`
}

// HandleCreate handles POST /api/executions
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	execution, err := h.repo.Create(req.Strategy, req.Symbol, req.AlertConfidence)
	if err != nil {
		h.log.Warn().Err(err).Msg("Execution create rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := map[string]interface{}{
		"data": execution,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusCreated, response)
}

type closeRequest struct {
	Outcome string  `json:"outcome"`
	PnL     float64 `json:"pnl"`
}

// HandleClose handles POST /api/executions/{id}/close
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.repo.CloseOutcome(id, domain.ExecutionOutcome(req.Outcome), req.PnL); err != nil {
		h.log.Warn().Err(err).Str("execution_id", id).Msg("Execution close rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	execution, err := h.repo.Get(id)
	if err != nil {
		http.Error(w, "Failed to get execution", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": execution,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetByStrategy handles GET /api/executions/strategy/{strategy}
func (h *Handler) HandleGetByStrategy(w http.ResponseWriter, r *http.Request) {
	strategy := chi.URLParam(r, "strategy")

	records, err := h.repo.GetByStrategy(strategy, 200)
	if err != nil {
		h.log.Error().Err(err).Str("strategy", strategy).Msg("Failed to get executions")
		http.Error(w, "Failed to get executions", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": records,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(records),
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
