// Package handlers provides HTTP handlers for target allocation operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/modules/allocation"
)

// Handler handles target allocation HTTP requests
type Handler struct {
	repo *allocation.Repository
	log  zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(repo *allocation.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "allocation").Logger(),
	}
}

// HandleGetAll handles GET /api/allocations
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get allocations")
		http.Error(w, "Failed to get allocations", http.StatusInternalServerError)
		return
	}

	total, err := h.repo.TotalWeight()
	if err != nil {
		http.Error(w, "Failed to get allocations", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"allocations":  allocations,
			"total_weight": total,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleUpsert handles PUT /api/allocations
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var target domain.TargetAllocation
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.repo.Upsert(target); err != nil {
		h.log.Warn().Err(err).Msg("Allocation upsert rejected")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{"saved": true},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleReplaceAll handles POST /api/allocations/replace
func (h *Handler) HandleReplaceAll(w http.ResponseWriter, r *http.Request) {
	var targets []domain.TargetAllocation
	if err := json.NewDecoder(r.Body).Decode(&targets); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.repo.ReplaceAll(targets); err != nil {
		h.log.Warn().Err(err).Msg("Allocation replace rejected")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{"saved": true, "count": len(targets)},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleDelete handles DELETE /api/allocations/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid allocation ID", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{"deleted": true},
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
