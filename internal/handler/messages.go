package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/middleware"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	conversationService *service.ConversationService
	tutorService        *service.TutorService
	logger              *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	convSvc *service.ConversationService,
	tutorSvc *service.TutorService,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		conversationService: convSvc,
		tutorService:        tutorSvc,
		logger:              log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}
	conversationID, ok := pathID(w, r, "id", "conversation id")
	if !ok {
		return
	}

	resp, err := h.conversationService.Messages(r.Context(), auth, conversationID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Respond handles POST /api/v1/tutor/respond
func (h *MessageHandler) Respond(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}

	var req model.RespondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.tutorService.Respond(r.Context(), auth, &req)
	if err != nil {
		if apperr.IsKind(err, apperr.KindPersistence) {
			h.logger.Error("tutor turn failed",
				zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
				zap.String("conversation_id", req.ConversationID),
				zap.Error(err))
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
