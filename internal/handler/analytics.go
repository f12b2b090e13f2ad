package handler

import (
	"net/http"

	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// AnalyticsHandler serves the teacher dashboard.
type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc *service.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: svc,
		logger:  log,
	}
}

// Aggregate handles POST /api/v1/analytics
func (h *AnalyticsHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}

	var req model.AnalyticsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := h.service.Aggregate(r.Context(), auth, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
