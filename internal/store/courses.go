package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/socratic-ai/tutor-platform/internal/model"
)

const courseColumns = `id, teacher_id, name, join_code, created_at`

// CreateCourse inserts a course. A join code collision returns ErrConflict.
func (s *Store) CreateCourse(ctx context.Context, c *model.Course) error {
	query := s.rebind(`INSERT INTO courses (` + courseColumns + `) VALUES (?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query, c.ID, c.TeacherID, c.Name, c.JoinCode, c.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert course: %w", err)
	}
	return nil
}

// GetCourse returns a course by id.
func (s *Store) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	query := s.rebind(`SELECT ` + courseColumns + ` FROM courses WHERE id = ?`)
	return s.scanCourse(s.db.QueryRowContext(ctx, query, id))
}

// GetCourseByJoinCode returns the course with exactly the given join code.
func (s *Store) GetCourseByJoinCode(ctx context.Context, code string) (*model.Course, error) {
	query := s.rebind(`SELECT ` + courseColumns + ` FROM courses WHERE join_code = ?`)
	return s.scanCourse(s.db.QueryRowContext(ctx, query, code))
}

// ListCoursesByTeacher returns the courses a teacher owns, newest first.
func (s *Store) ListCoursesByTeacher(ctx context.Context, teacherID string) ([]model.Course, error) {
	query := s.rebind(`SELECT ` + courseColumns + ` FROM courses WHERE teacher_id = ? ORDER BY created_at DESC, id`)
	return s.queryCourses(ctx, query, teacherID)
}

// ListCoursesByStudent returns the courses a student is enrolled in, newest first.
func (s *Store) ListCoursesByStudent(ctx context.Context, studentID string) ([]model.Course, error) {
	query := s.rebind(`
		SELECT c.id, c.teacher_id, c.name, c.join_code, c.created_at
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = ?
		ORDER BY c.created_at DESC, c.id`)
	return s.queryCourses(ctx, query, studentID)
}

// Enroll adds a student to a course. It reports whether a new enrollment was
// created; enrolling twice is a no-op.
func (s *Store) Enroll(ctx context.Context, courseID, studentID string, at time.Time) (bool, error) {
	query := s.rebind(`
		INSERT INTO enrollments (course_id, student_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (course_id, student_id) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query, courseID, studentID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert enrollment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read enrollment result: %w", err)
	}
	return n > 0, nil
}

// IsEnrolled reports whether a student is enrolled in a course.
func (s *Store) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	query := s.rebind(`SELECT 1 FROM enrollments WHERE course_id = ? AND student_id = ?`)

	var one int
	err := s.db.QueryRowContext(ctx, query, courseID, studentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query enrollment: %w", err)
	}
	return true, nil
}

// CountEnrollments returns the number of enrollment rows for a course.
func (s *Store) CountEnrollments(ctx context.Context, courseID string) (int, error) {
	query := s.rebind(`SELECT COUNT(*) FROM enrollments WHERE course_id = ?`)

	var n int
	if err := s.db.QueryRowContext(ctx, query, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return n, nil
}

// CreateAssignment inserts an assignment.
func (s *Store) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	query := s.rebind(`INSERT INTO assignments (id, course_id, title, created_at) VALUES (?, ?, ?, ?)`)

	if _, err := s.db.ExecContext(ctx, query, a.ID, a.CourseID, a.Title, a.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// GetAssignment returns an assignment by id.
func (s *Store) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	query := s.rebind(`SELECT id, course_id, title, created_at FROM assignments WHERE id = ?`)

	var a model.Assignment
	err := s.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.CourseID, &a.Title, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// ListAssignments returns a course's assignments in creation order.
func (s *Store) ListAssignments(ctx context.Context, courseID string) ([]model.Assignment, error) {
	query := s.rebind(`SELECT id, course_id, title, created_at FROM assignments WHERE course_id = ? ORDER BY created_at, id`)

	rows, err := s.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	assignments := []model.Assignment{}
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Title, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return assignments, nil
}

func (s *Store) scanCourse(row *sql.Row) (*model.Course, error) {
	var c model.Course
	err := row.Scan(&c.ID, &c.TeacherID, &c.Name, &c.JoinCode, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query course: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) queryCourses(ctx context.Context, query string, args ...any) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.TeacherID, &c.Name, &c.JoinCode, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}
	return courses, nil
}
