package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/model"
)

const (
	// StreamName is the name of the tutoring events stream.
	StreamName = "TUTOR"

	// SubjectPrefix is the prefix for all tutoring subjects.
	SubjectPrefix = "tutor"

	subscriptionBuffer = 32
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the tutoring stream exists. Events are live
// notifications; the relational store is the system of record, so the
// stream keeps only a short window.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Tutor conversation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a message event.
func MessageSubject(courseID, conversationID string, sender model.Sender) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, courseID, conversationID, sender)
}

// EventSubject returns the subject for a non-message event.
func EventSubject(courseID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, courseID, conversationID, eventType)
}

// ConversationFilter returns the filter subject for all events of a conversation.
func ConversationFilter(courseID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, courseID, conversationID)
}

func subjectFor(event *model.ConversationEvent) string {
	if event.Type == model.EventTypeMessageCreated && event.Message != nil {
		return MessageSubject(event.CourseID, event.ConversationID, event.Message.Sender)
	}
	return EventSubject(event.CourseID, event.ConversationID, event.Type)
}

// PublishEvent publishes a conversation event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, subjectFor(event), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe delivers events of one conversation published from now on. The
// returned stop function releases the consumer.
func (m *StreamManager) Subscribe(ctx context.Context, courseID, conversationID string) (<-chan *model.ConversationEvent, func(), error) {
	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(courseID, conversationID)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	events := make(chan *model.ConversationEvent, subscriptionBuffer)
	done := make(chan struct{})

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var event model.ConversationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			m.client.logger.Warn("dropping undecodable event",
				zap.String("subject", msg.Subject()),
				zap.Error(err))
			return
		}

		select {
		case events <- &event:
		case <-done:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to consume: %w", err)
	}

	stop := func() {
		consumeCtx.Stop()
		close(done)
	}

	return events, stop, nil
}

// NoopPublisher discards events. Used when NATS is not configured.
type NoopPublisher struct{}

// PublishEvent implements the publisher interface.
func (NoopPublisher) PublishEvent(context.Context, *model.ConversationEvent) error {
	return nil
}
