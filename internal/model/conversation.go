// Package model defines data structures for the tutoring platform.
package model

import (
	"time"
)

// Conversation is the message thread between one student and the tutor for one assignment.
type Conversation struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	CourseID     string    `json:"course_id"`
	AssignmentID string    `json:"assignment_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// OpenConversationRequest is the request to open (get or create) a conversation.
type OpenConversationRequest struct {
	CourseID     string `json:"course_id"`
	AssignmentID string `json:"assignment_id"`
}

// OpenConversationResponse is the response for opening a conversation.
type OpenConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	Created      bool          `json:"created"`
}
