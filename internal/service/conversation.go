package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
	"github.com/socratic-ai/tutor-platform/pkg/metrics"
)

// ConversationService handles conversation operations.
type ConversationService struct {
	store  Store
	access courseAccess
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st Store, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		access: courseAccess{store: st},
		logger: log,
	}
}

// Open returns the caller's conversation for an assignment, creating it on
// first use. At most one conversation exists per student and assignment.
func (s *ConversationService) Open(ctx context.Context, auth model.AuthContext, req *model.OpenConversationRequest) (*model.OpenConversationResponse, error) {
	if !auth.IsStudent() {
		return nil, apperr.Forbidden("only students can open tutor conversations")
	}
	if req.AssignmentID == "" {
		return nil, apperr.Validation("assignment_id is required")
	}

	if _, err := s.access.member(ctx, auth, req.CourseID); err != nil {
		return nil, err
	}

	assignment, err := s.store.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, storeError(err, "assignment")
	}
	if assignment.CourseID != req.CourseID {
		return nil, apperr.NotFound("assignment not found")
	}

	conv, created, err := s.store.GetOrCreateConversation(ctx, &model.Conversation{
		ID:           newID(),
		StudentID:    auth.UserID,
		CourseID:     req.CourseID,
		AssignmentID: req.AssignmentID,
		CreatedAt:    now(),
	})
	if err != nil {
		return nil, apperr.Persistence("failed to open conversation", err)
	}

	if created {
		metrics.ConversationsTotal.WithLabelValues("true").Inc()
		s.logger.Info("conversation created",
			zap.String("conversation_id", conv.ID),
			zap.String("student_id", auth.UserID),
			zap.String("assignment_id", req.AssignmentID))
	} else {
		metrics.ConversationsTotal.WithLabelValues("false").Inc()
	}

	return &model.OpenConversationResponse{Conversation: conv, Created: created}, nil
}

// Get returns a conversation the caller may read: the owning student while
// enrolled, or the teacher who owns the course.
func (s *ConversationService) Get(ctx context.Context, auth model.AuthContext, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, apperr.Validation("conversation_id is required")
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, apperr.Persistence("failed to load conversation", err)
	}

	if auth.IsStudent() && conv.StudentID != auth.UserID {
		return nil, apperr.Forbidden("this conversation belongs to another student")
	}
	if _, err := s.access.member(ctx, auth, conv.CourseID); err != nil {
		return nil, err
	}

	return conv, nil
}

// Messages returns a conversation's full message log.
func (s *ConversationService) Messages(ctx context.Context, auth model.AuthContext, conversationID string) (*model.ListMessagesResponse, error) {
	conv, err := s.Get(ctx, auth, conversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, apperr.Persistence("failed to list messages", err)
	}

	return &model.ListMessagesResponse{Messages: msgs}, nil
}
