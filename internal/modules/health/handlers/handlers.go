// Package handlers provides HTTP handlers for strategy health operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/modules/health"
)

// Handler handles strategy health HTTP requests
type Handler struct {
	repo    *health.Repository
	monitor *health.Monitor
	weights *health.WeightBook
	log     zerolog.Logger
}

// NewHandler creates a new health handler
func NewHandler(repo *health.Repository, monitor *health.Monitor, weights *health.WeightBook, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		monitor: monitor,
		weights: weights,
		log:     log.With().Str("handler", "health").Logger(),
	}
}

// HandleGetAll handles GET /api/strategies/health
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get strategy health")
		http.Error(w, "Failed to get strategy health", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"strategies": records,
			"weights":    h.weights.All(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetStrategy handles GET /api/strategies/{name}/health
func (h *Handler) HandleGetStrategy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	record, err := h.repo.Get(name)
	if err != nil {
		h.log.Error().Err(err).Str("strategy", name).Msg("Failed to get strategy health")
		http.Error(w, "Failed to get strategy health", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Strategy not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": record,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleEvaluate handles POST /api/strategies/{name}/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.monitor.Evaluate(name); err != nil {
		h.log.Error().Err(err).Str("strategy", name).Msg("Evaluation failed")
		http.Error(w, "Evaluation failed", http.StatusInternalServerError)
		return
	}

	record, err := h.repo.Get(name)
	if err != nil {
		http.Error(w, "Failed to get strategy health", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": record,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleReEnable handles POST /api/strategies/{name}/re-enable
func (h *Handler) HandleReEnable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.monitor.ReEnable(name); err != nil {
		h.log.Warn().Err(err).Str("strategy", name).Msg("Re-enable rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{"re_enabled": true, "strategy": name},
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
