package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/llm"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
	"github.com/socratic-ai/tutor-platform/pkg/metrics"
)

const (
	// MaxMessageBytes bounds a single student message.
	MaxMessageBytes = 100_000

	// excerptCandidates bounds the chunks scanned for prompt grounding. The
	// store returns assignment materials first, newest first.
	excerptCandidates = 200
)

var tracer = otel.Tracer("github.com/socratic-ai/tutor-platform/internal/service")

// TutorConfig holds tutor turn settings.
type TutorConfig struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	HistoryWindow int
}

// TutorService runs tutor turns.
type TutorService struct {
	store     Store
	materials *MaterialService
	llmClient llm.Client
	publisher EventPublisher
	cfg       TutorConfig
	logger    *logger.Logger
}

// NewTutorService creates a new tutor service.
func NewTutorService(
	st Store,
	materials *MaterialService,
	llmClient llm.Client,
	publisher EventPublisher,
	cfg TutorConfig,
	log *logger.Logger,
) *TutorService {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 40
	}
	return &TutorService{
		store:     st,
		materials: materials,
		llmClient: llmClient,
		publisher: publisher,
		cfg:       cfg,
		logger:    log,
	}
}

// Respond runs one tutor turn. The student message is stored before the
// model is called and stays stored when the turn fails afterwards; the tutor
// reply is stored only after a valid structured response.
func (s *TutorService) Respond(ctx context.Context, auth model.AuthContext, req *model.RespondRequest) (resp *model.RespondResponse, err error) {
	ctx, span := tracer.Start(ctx, "tutor.respond", trace.WithAttributes(
		attribute.String("conversation_id", req.ConversationID),
		attribute.Bool("allow_direct_answers", req.AllowDirectAnswers),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	conv, err := s.authorize(ctx, auth, req.ConversationID)
	if err != nil {
		return nil, err
	}

	text, err := validateTurn(req)
	if err != nil {
		return nil, err
	}

	studentMsg := &model.Message{
		ID:             newID(),
		ConversationID: conv.ID,
		Sender:         model.SenderStudent,
		Text:           text,
		CreatedAt:      now(),
		QuestionNumber: req.QuestionNumber,
	}
	if err := s.store.AppendMessage(ctx, studentMsg); err != nil {
		metrics.TutorTurnsTotal.WithLabelValues("persistence_error").Inc()
		return nil, apperr.Persistence("failed to save student message", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.SenderStudent)).Inc()

	log := s.logger.With(
		zap.String("conversation_id", conv.ID),
		zap.String("student_message_id", studentMsg.ID))

	history, err := s.store.RecentMessages(ctx, conv.ID, s.cfg.HistoryWindow, studentMsg.ID)
	if err != nil {
		metrics.TutorTurnsTotal.WithLabelValues("persistence_error").Inc()
		return nil, apperr.Persistence("failed to load conversation history", err)
	}

	candidates, err := s.materials.StudentContext(ctx, conv.CourseID, conv.AssignmentID, excerptCandidates)
	if err != nil {
		metrics.TutorTurnsTotal.WithLabelValues("persistence_error").Inc()
		return nil, err
	}
	excerpts := selectExcerpts(candidates, text, maxPromptExcerpts)

	out, err := s.complete(ctx, &llm.CompletionRequest{
		Model:       s.cfg.Model,
		System:      systemPrompt(req.AllowDirectAnswers, excerpts),
		Messages:    chatHistory(history, text),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		s.turnFailed(ctx, conv, err)
		log.Warn("tutor turn failed", zap.Error(err))
		return nil, err
	}

	questionNumber := out.QuestionNumber
	if req.QuestionNumber != nil {
		questionNumber = req.QuestionNumber
	}

	reply := out.TutorReply
	if !req.AllowDirectAnswers {
		reply = enforceSocratic(reply)
	}

	tags := model.MessageTags{
		QuestionNumber: questionNumber,
		TopicTag:       out.TopicTag,
		ConfusionFlag:  out.ConfusionFlag,
	}
	tutorMsg := &model.Message{
		ID:             newID(),
		ConversationID: conv.ID,
		Sender:         model.SenderTutor,
		Text:           reply,
		CreatedAt:      now(),
		GroundedFlag:   out.Grounded,
	}
	if err := s.store.AppendReply(ctx, studentMsg.ID, tags, tutorMsg); err != nil {
		metrics.TutorTurnsTotal.WithLabelValues("persistence_error").Inc()
		return nil, apperr.Persistence("failed to save tutor reply", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.SenderTutor)).Inc()
	metrics.TutorTurnsTotal.WithLabelValues("ok").Inc()

	studentMsg.QuestionNumber = tags.QuestionNumber
	studentMsg.TopicTag = tags.TopicTag
	studentMsg.ConfusionFlag = model.BoolPtr(tags.ConfusionFlag)
	s.publish(ctx, conv, studentMsg)
	s.publish(ctx, conv, tutorMsg)

	log.Info("tutor turn completed",
		zap.Bool("confusion_flag", tags.ConfusionFlag),
		zap.Int("history", len(history)),
		zap.Int("excerpts", len(excerpts)))

	return &model.RespondResponse{
		TutorReply: reply,
		Metadata: model.TurnMetadata{
			QuestionNumber: tags.QuestionNumber,
			TopicTag:       tags.TopicTag,
			ConfusionFlag:  tags.ConfusionFlag,
		},
		MaterialsReferenced: referencedTitles(excerpts),
		StudentMessageID:    studentMsg.ID,
		TutorMessageID:      tutorMsg.ID,
	}, nil
}

// authorize returns the conversation when the caller is its student and is
// still enrolled in the course.
func (s *TutorService) authorize(ctx context.Context, auth model.AuthContext, conversationID string) (*model.Conversation, error) {
	if !auth.IsStudent() {
		return nil, apperr.Forbidden("only students can talk to the tutor")
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, apperr.Validation("conversation_id is required")
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, apperr.Persistence("failed to load conversation", err)
	}
	if conv.StudentID != auth.UserID {
		return nil, apperr.Forbidden("this conversation belongs to another student")
	}

	enrolled, err := s.store.IsEnrolled(ctx, conv.CourseID, auth.UserID)
	if err != nil {
		return nil, apperr.Persistence("failed to check enrollment", err)
	}
	if !enrolled {
		return nil, apperr.Forbidden("you are no longer enrolled in this course")
	}
	return conv, nil
}

func validateTurn(req *model.RespondRequest) (string, error) {
	text := strings.TrimSpace(req.Message)
	switch {
	case text == "":
		return "", apperr.Validation("message is required")
	case len(req.Message) > MaxMessageBytes:
		return "", apperr.Validation("message is too long")
	case !utf8.ValidString(req.Message):
		return "", apperr.Validation("message must be valid UTF-8")
	case req.QuestionNumber != nil && *req.QuestionNumber < 1:
		return "", apperr.Validation("question_number must be positive")
	}
	return text, nil
}

// complete calls the model and decodes its structured reply. No retry.
func (s *TutorService) complete(ctx context.Context, req *llm.CompletionRequest) (*tutorOutput, error) {
	provider := s.llmClient.Name()
	start := time.Now()

	resp, err := s.llmClient.Complete(ctx, req)
	if err != nil {
		metrics.RecordCompletion(provider, "error", time.Since(start).Seconds(), 0, 0)
		if _, ok := apperr.As(err); !ok {
			err = apperr.Unavailable(err)
		}
		return nil, err
	}
	metrics.RecordCompletion(provider, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	out, err := parseTutorOutput(resp.Content)
	if err != nil {
		return nil, apperr.Malformed(err)
	}
	return out, nil
}

func (s *TutorService) turnFailed(ctx context.Context, conv *model.Conversation, err error) {
	outcome := "error"
	if e, ok := apperr.As(err); ok && e.Code != "" {
		outcome = e.Code
	}
	metrics.TutorTurnsTotal.WithLabelValues(outcome).Inc()

	event := &model.ConversationEvent{
		ID:             newID(),
		ConversationID: conv.ID,
		CourseID:       conv.CourseID,
		Type:           model.EventTypeTurnFailed,
		Reason:         apperr.PublicMessage(err),
		CreatedAt:      now(),
	}
	if pubErr := s.publisher.PublishEvent(ctx, event); pubErr != nil {
		s.logger.Warn("failed to publish turn failure", zap.String("conversation_id", conv.ID), zap.Error(pubErr))
	}
}

func (s *TutorService) publish(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	event := &model.ConversationEvent{
		ID:             newID(),
		ConversationID: conv.ID,
		CourseID:       conv.CourseID,
		Type:           model.EventTypeMessageCreated,
		Message:        msg,
		CreatedAt:      msg.CreatedAt,
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish message event",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}
