package handlers

import (
	"net/http"

	"github.com/pivoter/pivoter/internal/services"
)

// AnalyticsHandler handles analytics-related HTTP requests.
type AnalyticsHandler struct {
	service services.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(svc services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: svc}
}

// GetStats handles GET /api/v1/datasets/{id}/stats requests.
func (h *AnalyticsHandler) GetStats(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}

	stats, err := h.service.GetDatasetStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
