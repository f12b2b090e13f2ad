// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Open handles POST /api/v1/conversations
func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}

	var req model.OpenConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.Open(r.Context(), auth, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}
