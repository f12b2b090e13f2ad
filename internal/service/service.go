// Package service provides business logic for the tutoring platform.
package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/store"
)

// Store is the persistence the services depend on. *store.Store implements it.
type Store interface {
	UpsertProfile(ctx context.Context, p model.Profile) error
	GetProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error)

	CreateCourse(ctx context.Context, c *model.Course) error
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	GetCourseByJoinCode(ctx context.Context, code string) (*model.Course, error)
	ListCoursesByTeacher(ctx context.Context, teacherID string) ([]model.Course, error)
	ListCoursesByStudent(ctx context.Context, studentID string) ([]model.Course, error)
	Enroll(ctx context.Context, courseID, studentID string, at time.Time) (bool, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	CreateAssignment(ctx context.Context, a *model.Assignment) error
	GetAssignment(ctx context.Context, id string) (*model.Assignment, error)
	ListAssignments(ctx context.Context, courseID string) ([]model.Assignment, error)

	GetOrCreateConversation(ctx context.Context, candidate *model.Conversation) (*model.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, courseID, assignmentID string) ([]model.Conversation, error)

	AppendMessage(ctx context.Context, m *model.Message) error
	AppendReply(ctx context.Context, studentMessageID string, tags model.MessageTags, reply *model.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	RecentMessages(ctx context.Context, conversationID string, n int, excludeID string) ([]model.Message, error)
	ListMessagesForConversations(ctx context.Context, conversationIDs []string, from, to *time.Time) ([]model.Message, error)

	CreateMaterial(ctx context.Context, m *model.Material, chunks []model.MaterialTextChunk) error
	GetMaterial(ctx context.Context, id string) (*model.Material, error)
	ListMaterials(ctx context.Context, courseID string, assignmentID *string, kinds []model.MaterialKind) ([]model.Material, error)
	ListMaterialExcerpts(ctx context.Context, courseID string, assignmentID *string, kinds []model.MaterialKind, limit int) ([]model.MaterialExcerpt, error)
	DeleteMaterial(ctx context.Context, id string) error
}

// EventPublisher publishes conversation events for live listeners.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) error
}

// ObjectStorage holds material files.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// now returns the current time at the precision the store keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// storeError converts a store failure into the request-boundary taxonomy.
func storeError(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	return apperr.Persistence("failed to load "+what, err)
}

// courseAccess resolves a course and checks the caller's relationship to it.
type courseAccess struct {
	store Store
}

// owner returns the course when the caller is the teacher who owns it.
func (a courseAccess) owner(ctx context.Context, auth model.AuthContext, courseID string) (*model.Course, error) {
	if !auth.IsTeacher() {
		return nil, apperr.Forbidden("only teachers can manage a course")
	}
	if courseID == "" {
		return nil, apperr.Validation("course_id is required")
	}

	course, err := a.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, storeError(err, "course")
	}
	if course.TeacherID != auth.UserID {
		return nil, apperr.Forbidden("you do not own this course")
	}
	return course, nil
}

// member returns the course when the caller owns it or is enrolled in it.
func (a courseAccess) member(ctx context.Context, auth model.AuthContext, courseID string) (*model.Course, error) {
	if courseID == "" {
		return nil, apperr.Validation("course_id is required")
	}

	course, err := a.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, storeError(err, "course")
	}

	switch {
	case auth.IsTeacher():
		if course.TeacherID == auth.UserID {
			return course, nil
		}
	case auth.IsStudent():
		enrolled, err := a.store.IsEnrolled(ctx, courseID, auth.UserID)
		if err != nil {
			return nil, apperr.Persistence("failed to check enrollment", err)
		}
		if enrolled {
			return course, nil
		}
	}
	return nil, apperr.Forbidden("you are not a member of this course")
}
