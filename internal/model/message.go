package model

import (
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderStudent Sender = "student"
	SenderTutor   Sender = "tutor"
)

// Message is one entry of a conversation's append-only log.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`

	// Tagging annotations. Set on student messages by the turn that produced
	// them, and grounding on tutor messages.
	QuestionNumber *int    `json:"question_number,omitempty"`
	TopicTag       *string `json:"topic_tag,omitempty"`
	ConfusionFlag  *bool   `json:"confusion_flag,omitempty"`
	GroundedFlag   *bool   `json:"grounded_flag,omitempty"`
}

// Confused reports whether the message carries a true confusion flag.
func (m *Message) Confused() bool {
	return m.ConfusionFlag != nil && *m.ConfusionFlag
}

// MessageTags are the annotations a tutor turn attaches to the student message.
type MessageTags struct {
	QuestionNumber *int
	TopicTag       *string
	ConfusionFlag  bool
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

// RespondRequest is a student's tutor turn.
type RespondRequest struct {
	Message            string `json:"message"`
	ConversationID     string `json:"conversation_id"`
	QuestionNumber     *int   `json:"question_number,omitempty"`
	AllowDirectAnswers bool   `json:"allow_direct_answers"`
}

// TurnMetadata is the tagging metadata produced by a tutor turn.
type TurnMetadata struct {
	QuestionNumber *int    `json:"question_number"`
	TopicTag       *string `json:"topic_tag"`
	ConfusionFlag  bool    `json:"confusion_flag"`
}

// RespondResponse is the result of a tutor turn. MaterialsReferenced is a
// view-only annotation and is never persisted.
type RespondResponse struct {
	TutorReply          string       `json:"tutor_reply"`
	Metadata            TurnMetadata `json:"metadata"`
	MaterialsReferenced []string     `json:"materials_referenced,omitempty"`
	StudentMessageID    string       `json:"student_message_id"`
	TutorMessageID      string       `json:"tutor_message_id"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
