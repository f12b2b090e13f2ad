package model

import (
	"time"
)

// AnalyticsRequest selects the conversations to aggregate.
type AnalyticsRequest struct {
	CourseID     string     `json:"course_id"`
	AssignmentID string     `json:"assignment_id"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
}

// KPIs are the headline dashboard numbers.
type KPIs struct {
	ConfusedPct         int     `json:"confused_pct"`
	StudentsNeedingHelp int     `json:"students_needing_help"`
	TopQuestion         *int    `json:"top_question"`
	TopTopic            *string `json:"top_topic"`
	GroundedRate        int     `json:"grounded_rate"`
}

// QuestionCount is one bar of the per-question confusion histogram.
type QuestionCount struct {
	Question int `json:"question"`
	Confused int `json:"confused"`
}

// TopicCount is one bar of the per-topic confusion histogram.
type TopicCount struct {
	Topic    string `json:"topic"`
	Confused int    `json:"confused"`
}

// StudentNeedingHelp is a student's most recent confused message.
type StudentNeedingHelp struct {
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name"`
	Question       *int      `json:"question"`
	Topic          *string   `json:"topic"`
	LastTS         time.Time `json:"last_ts"`
	ConversationID string    `json:"conversation_id"`
	LastMessage    string    `json:"last_message"`
}

// AnalyticsSnapshot is derived on every request and never persisted.
type AnalyticsSnapshot struct {
	KPIs       KPIs                 `json:"kpis"`
	ByQuestion []QuestionCount      `json:"by_question"`
	Topics     []TopicCount         `json:"topics"`
	Students   []StudentNeedingHelp `json:"students"`
}

// EmptySnapshot is the snapshot for a selection with no data.
func EmptySnapshot() *AnalyticsSnapshot {
	return &AnalyticsSnapshot{
		KPIs:       KPIs{GroundedRate: 100},
		ByQuestion: []QuestionCount{},
		Topics:     []TopicCount{},
		Students:   []StudentNeedingHelp{},
	}
}
