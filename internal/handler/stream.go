package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
	"github.com/socratic-ai/tutor-platform/pkg/metrics"
)

// Subscriber delivers live events for one conversation.
type Subscriber interface {
	Subscribe(ctx context.Context, courseID, conversationID string) (<-chan *model.ConversationEvent, func(), error)
}

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	conversationService *service.ConversationService
	subscriber          Subscriber
	heartbeat           time.Duration
	logger              *logger.Logger
}

// NewStreamHandler creates a new stream handler. A nil subscriber serves
// replay only.
func NewStreamHandler(convSvc *service.ConversationService, subscriber Subscriber, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		conversationService: convSvc,
		subscriber:          subscriber,
		heartbeat:           30 * time.Second,
		logger:              log,
	}
}

// ReplayCompleteEvent marks the end of the stored history.
type ReplayCompleteEvent struct {
	MessageCount  int    `json:"message_count"`
	LastMessageID string `json:"last_message_id,omitempty"`
	Live          bool   `json:"live"`
}

// Stream handles GET /api/v1/conversations/{id}/stream
// It replays the stored messages, then forwards live events until the
// client disconnects.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := authContext(w, r)
	if !ok {
		return
	}
	conversationID, ok := pathID(w, r, "id", "conversation id")
	if !ok {
		return
	}

	conv, err := h.conversationService.Get(ctx, auth, conversationID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Validation("streaming not supported"))
		return
	}

	// Subscribe before replaying so nothing published in between is lost.
	var (
		events <-chan *model.ConversationEvent
		stop   = func() {}
	)
	if h.subscriber != nil {
		events, stop, err = h.subscriber.Subscribe(ctx, conv.CourseID, conv.ID)
		if err != nil {
			h.logger.Warn("live subscription unavailable", zap.String("conversation_id", conv.ID), zap.Error(err))
			events, stop = nil, func() {}
		}
	}
	defer stop()

	history, err := h.conversationService.Messages(ctx, auth, conv.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conv.ID,
	})

	replayed := make(map[string]struct{}, len(history.Messages))
	complete := ReplayCompleteEvent{Live: events != nil}
	for i := range history.Messages {
		msg := &history.Messages[i]
		if err := sendSSEEvent(w, flusher, "message", msg); err != nil {
			return
		}
		replayed[msg.ID] = struct{}{}
		complete.MessageCount++
		complete.LastMessageID = msg.ID
	}
	sendSSEEvent(w, flusher, "replay_complete", &complete)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("conversation_id", conv.ID))
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Type {
			case model.EventTypeMessageCreated:
				if event.Message == nil {
					continue
				}
				if _, seen := replayed[event.Message.ID]; seen {
					continue
				}
				sendSSEEvent(w, flusher, "message", event.Message)
			case model.EventTypeTurnFailed:
				sendSSEEvent(w, flusher, "turn_failed", &model.ErrorEvent{
					Code:    "turn_failed",
					Message: event.Reason,
				})
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
