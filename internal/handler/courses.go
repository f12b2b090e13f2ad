package handler

import (
	"net/http"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// CourseHandler handles course, enrollment and assignment endpoints.
type CourseHandler struct {
	service *service.CourseService
	logger  *logger.Logger
}

// NewCourseHandler creates a new course handler.
func NewCourseHandler(svc *service.CourseService, log *logger.Logger) *CourseHandler {
	return &CourseHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/courses
func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}

	var req model.CreateCourseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	course, err := h.service.Create(r.Context(), auth, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, course)
}

// List handles GET /api/v1/courses
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}

	courses, err := h.service.List(r.Context(), auth)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

// Join handles POST /api/v1/courses/join
func (h *CourseHandler) Join(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}

	var req model.JoinCourseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.Join(r.Context(), auth, &req)
	if err != nil {
		// an unknown code is a bad submission, not a missing resource
		if apperr.IsKind(err, apperr.KindNotFound) {
			writeErrorStatus(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateAssignment handles POST /api/v1/courses/{id}/assignments
func (h *CourseHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}
	courseID, ok := pathID(w, r, "id", "course id")
	if !ok {
		return
	}

	var req model.CreateAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	assignment, err := h.service.CreateAssignment(r.Context(), auth, courseID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, assignment)
}

// ListAssignments handles GET /api/v1/courses/{id}/assignments
func (h *CourseHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}
	courseID, ok := pathID(w, r, "id", "course id")
	if !ok {
		return
	}

	assignments, err := h.service.ListAssignments(r.Context(), auth, courseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"assignments": assignments})
}
