package model

import (
	"time"
)

// Course is a teacher-owned class students join by code.
type Course struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	Name      string    `json:"name"`
	JoinCode  string    `json:"join_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Assignment is a unit of work inside a course.
type Assignment struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCourseRequest is the request to create a course.
type CreateCourseRequest struct {
	Name string `json:"name"`
}

// JoinCourseRequest is the request to join a course by code.
type JoinCourseRequest struct {
	JoinCode string `json:"join_code"`
}

// JoinCourseResponse is the response for a join.
type JoinCourseResponse struct {
	Course *Course `json:"course"`
}

// CreateAssignmentRequest is the request to create an assignment.
type CreateAssignmentRequest struct {
	Title string `json:"title"`
}
