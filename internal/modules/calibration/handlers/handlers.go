// Package handlers provides HTTP handlers for calibration operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/modules/calibration"
)

// Handler handles calibration HTTP requests
type Handler struct {
	calibrator *calibration.Calibrator
	log        zerolog.Logger
}

// NewHandler creates a new calibration handler
func NewHandler(calibrator *calibration.Calibrator, log zerolog.Logger) *Handler {
	return &Handler{
		calibrator: calibrator,
		log:        log.With().Str("handler", "calibration").Logger(),
	}
}

// HandleGetCurves handles GET /api/calibration/curves
func (h *Handler) HandleGetCurves(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"data": h.calibrator.Curves(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleCalibrate handles GET /api/calibration/{strategy}?confidence=0.8
func (h *Handler) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	strategy := chi.URLParam(r, "strategy")
	if strategy == "" {
		http.Error(w, "Strategy is required", http.StatusBadRequest)
		return
	}

	confidence, err := strconv.ParseFloat(r.URL.Query().Get("confidence"), 64)
	if err != nil {
		http.Error(w, "Invalid confidence parameter", http.StatusBadRequest)
		return
	}

	result := h.calibrator.Calibrate(strategy, confidence)

	response := map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleRefresh handles POST /api/calibration/{strategy}/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	strategy := chi.URLParam(r, "strategy")
	if strategy == "" {
		http.Error(w, "Strategy is required", http.StatusBadRequest)
		return
	}

	if err := h.calibrator.Refresh(strategy); err != nil {
		h.log.Error().Err(err).Str("strategy", strategy).Msg("Calibration refresh failed")
		http.Error(w, "Calibration refresh failed", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{"refreshed": true, "strategy": strategy},
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
