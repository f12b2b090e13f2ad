package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/socratic-ai/tutor-platform/internal/model"
)

const conversationColumns = `id, student_id, course_id, assignment_id, created_at`

// GetOrCreateConversation inserts candidate unless a conversation already
// exists for its (student, assignment) pair, and returns the stored row. The
// boolean reports whether candidate was inserted.
func (s *Store) GetOrCreateConversation(ctx context.Context, candidate *model.Conversation) (*model.Conversation, bool, error) {
	insert := s.rebind(`
		INSERT INTO conversations (` + conversationColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (student_id, assignment_id) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, insert,
		candidate.ID, candidate.StudentID, candidate.CourseID, candidate.AssignmentID, candidate.CreatedAt.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert conversation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read conversation result: %w", err)
	}

	query := s.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE student_id = ? AND assignment_id = ?`)
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, candidate.StudentID, candidate.AssignmentID))
	if err != nil {
		return nil, false, err
	}
	return conv, n > 0, nil
}

// GetConversation returns a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := s.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`)
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// ListConversations returns the conversations of an assignment in a course.
func (s *Store) ListConversations(ctx context.Context, courseID, assignmentID string) ([]model.Conversation, error) {
	query := s.rebind(`
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE course_id = ? AND assignment_id = ?
		ORDER BY created_at, id`)

	rows, err := s.db.QueryContext(ctx, query, courseID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.StudentID, &c.CourseID, &c.AssignmentID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return convs, nil
}

func scanConversation(row *sql.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.StudentID, &c.CourseID, &c.AssignmentID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
