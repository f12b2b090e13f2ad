package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeMessageCreated EventType = "message.created"
	EventTypeTurnFailed     EventType = "turn.failed"
)

// ConversationEvent is published for live listeners of a conversation.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	CourseID       string    `json:"course_id"`
	Type           EventType `json:"type"`
	Message        *Message  `json:"message,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrorEvent is the SSE payload for stream errors.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
