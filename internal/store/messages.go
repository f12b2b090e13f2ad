package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/socratic-ai/tutor-platform/internal/model"
)

const messageColumns = `id, conversation_id, sender, text, created_at, question_number, topic_tag, confusion_flag, grounded_flag`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendMessage inserts a message.
func (s *Store) AppendMessage(ctx context.Context, m *model.Message) error {
	return s.insertMessage(ctx, s.db, m)
}

// AppendReply tags the student message and inserts the tutor reply in one
// transaction. Tags are written once; a student message that is missing or
// already tagged leaves nothing written.
func (s *Store) AppendReply(ctx context.Context, studentMessageID string, tags model.MessageTags, reply *model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := s.rebind(`
		UPDATE messages
		SET question_number = ?, topic_tag = ?, confusion_flag = ?
		WHERE id = ? AND sender = ? AND confusion_flag IS NULL`)

	res, err := tx.ExecContext(ctx, update,
		nullInt(tags.QuestionNumber), nullString(tags.TopicTag), tags.ConfusionFlag,
		studentMessageID, string(model.SenderStudent))
	if err != nil {
		return fmt.Errorf("failed to tag student message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read tag result: %w", err)
	}
	if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM messages WHERE id = ?`), studentMessageID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query student message: %w", err)
		}
		return ErrConflict
	}

	if err := s.insertMessage(ctx, tx, reply); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reply: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := s.rebind(`
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id`)
	return s.queryMessages(ctx, query, conversationID)
}

// RecentMessages returns at most n of the latest messages of a conversation,
// excluding excludeID, in chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, n int, excludeID string) ([]model.Message, error) {
	if n <= 0 {
		return []model.Message{}, nil
	}

	query := s.rebind(`
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ? AND id <> ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)

	msgs, err := s.queryMessages(ctx, query, conversationID, excludeID, n)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessagesForConversations returns the messages of all given
// conversations, optionally bounded by inclusive timestamps, ordered by time.
func (s *Store) ListMessagesForConversations(ctx context.Context, conversationIDs []string, from, to *time.Time) ([]model.Message, error) {
	all := []model.Message{}

	for start := 0; start < len(conversationIDs); start += inChunk {
		end := min(start+inChunk, len(conversationIDs))
		batch := conversationIDs[start:end]

		var b strings.Builder
		args := make([]any, 0, len(batch)+2)
		for _, id := range batch {
			args = append(args, id)
		}

		b.WriteString(`SELECT ` + messageColumns + ` FROM messages WHERE conversation_id IN (`)
		b.WriteString(placeholders(len(batch)))
		b.WriteString(`)`)
		if from != nil {
			b.WriteString(` AND created_at >= ?`)
			args = append(args, from.UTC())
		}
		if to != nil {
			b.WriteString(` AND created_at <= ?`)
			args = append(args, to.UTC())
		}
		b.WriteString(` ORDER BY created_at, id`)

		msgs, err := s.queryMessages(ctx, s.rebind(b.String()), args...)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}

	return all, nil
}

func (s *Store) insertMessage(ctx context.Context, ex execer, m *model.Message) error {
	query := s.rebind(`INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ex.ExecContext(ctx, query,
		m.ID, m.ConversationID, string(m.Sender), m.Text, m.CreatedAt.UTC(),
		nullInt(m.QuestionNumber), nullString(m.TopicTag), nullBool(m.ConfusionFlag), nullBool(m.GroundedFlag))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			m        model.Message
			sender   string
			question sql.NullInt64
			topic    sql.NullString
			confused sql.NullBool
			grounded sql.NullBool
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Text, &m.CreatedAt,
			&question, &topic, &confused, &grounded); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = model.Sender(sender)
		m.CreatedAt = m.CreatedAt.UTC()
		m.QuestionNumber = intPtr(question)
		m.TopicTag = stringPtr(topic)
		m.ConfusionFlag = boolPtr(confused)
		m.GroundedFlag = boolPtr(grounded)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}
