package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

const (
	joinCodeLength   = 6
	joinCodeAttempts = 5

	// Ambiguous characters (0/O, 1/I) are left out.
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// CourseService handles courses, enrollment, assignments and profiles.
type CourseService struct {
	store  Store
	access courseAccess
	logger *logger.Logger
}

// NewCourseService creates a new course service.
func NewCourseService(st Store, log *logger.Logger) *CourseService {
	return &CourseService{
		store:  st,
		access: courseAccess{store: st},
		logger: log,
	}
}

// SyncProfile records the caller's display name for analytics.
func (s *CourseService) SyncProfile(ctx context.Context, auth model.AuthContext) error {
	name := strings.TrimSpace(auth.DisplayName)
	if name == "" {
		return nil
	}

	if err := s.store.UpsertProfile(ctx, model.Profile{ID: auth.UserID, DisplayName: name, Role: auth.Role}); err != nil {
		return apperr.Persistence("failed to save profile", err)
	}
	return nil
}

// Create creates a course owned by the calling teacher.
func (s *CourseService) Create(ctx context.Context, auth model.AuthContext, req *model.CreateCourseRequest) (*model.Course, error) {
	if !auth.IsTeacher() {
		return nil, apperr.Forbidden("only teachers can create courses")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}

	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		code, err := GenerateJoinCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate join code: %w", err)
		}

		course := &model.Course{
			ID:        newID(),
			TeacherID: auth.UserID,
			Name:      name,
			JoinCode:  code,
			CreatedAt: now(),
		}

		err = s.store.CreateCourse(ctx, course)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, apperr.Persistence("failed to create course", err)
		}

		s.logger.Info("course created",
			zap.String("course_id", course.ID),
			zap.String("teacher_id", auth.UserID))
		return course, nil
	}

	return nil, apperr.Persistence("failed to allocate a unique join code", store.ErrConflict)
}

// List returns the caller's courses: owned for teachers, enrolled for students.
// Join codes are only shown to the owning teacher.
func (s *CourseService) List(ctx context.Context, auth model.AuthContext) ([]model.Course, error) {
	if auth.IsTeacher() {
		courses, err := s.store.ListCoursesByTeacher(ctx, auth.UserID)
		if err != nil {
			return nil, apperr.Persistence("failed to list courses", err)
		}
		return courses, nil
	}

	courses, err := s.store.ListCoursesByStudent(ctx, auth.UserID)
	if err != nil {
		return nil, apperr.Persistence("failed to list courses", err)
	}
	for i := range courses {
		courses[i].JoinCode = ""
	}
	return courses, nil
}

// Join enrolls the calling student in the course with the given code.
// Codes are case-insensitive. Joining twice is a no-op.
func (s *CourseService) Join(ctx context.Context, auth model.AuthContext, req *model.JoinCourseRequest) (*model.JoinCourseResponse, error) {
	if !auth.IsStudent() {
		return nil, apperr.Forbidden("only students can join courses")
	}

	code := NormalizeJoinCode(req.JoinCode)
	if code == "" {
		return nil, apperr.Validation("join_code is required")
	}

	course, err := s.store.GetCourseByJoinCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("invalid join code")
	}
	if err != nil {
		return nil, apperr.Persistence("failed to look up join code", err)
	}

	created, err := s.store.Enroll(ctx, course.ID, auth.UserID, now())
	if err != nil {
		return nil, apperr.Persistence("failed to enroll", err)
	}
	if created {
		s.logger.Info("student enrolled",
			zap.String("course_id", course.ID),
			zap.String("student_id", auth.UserID))
	}

	course.JoinCode = ""
	return &model.JoinCourseResponse{Course: course}, nil
}

// CreateAssignment adds an assignment to a course the caller owns.
func (s *CourseService) CreateAssignment(ctx context.Context, auth model.AuthContext, courseID string, req *model.CreateAssignmentRequest) (*model.Assignment, error) {
	if _, err := s.access.owner(ctx, auth, courseID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}

	a := &model.Assignment{
		ID:        newID(),
		CourseID:  courseID,
		Title:     title,
		CreatedAt: now(),
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		return nil, apperr.Persistence("failed to create assignment", err)
	}
	return a, nil
}

// ListAssignments lists the assignments of a course the caller belongs to.
func (s *CourseService) ListAssignments(ctx context.Context, auth model.AuthContext, courseID string) ([]model.Assignment, error) {
	if _, err := s.access.member(ctx, auth, courseID); err != nil {
		return nil, err
	}

	assignments, err := s.store.ListAssignments(ctx, courseID)
	if err != nil {
		return nil, apperr.Persistence("failed to list assignments", err)
	}
	return assignments, nil
}

// NormalizeJoinCode trims and uppercases a submitted join code.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateJoinCode returns a random uppercase join code.
func GenerateJoinCode() (string, error) {
	size := big.NewInt(int64(len(joinCodeAlphabet)))

	var b strings.Builder
	b.Grow(joinCodeLength)
	for i := 0; i < joinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(joinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
