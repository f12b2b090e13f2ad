package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/middleware"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// multipartOverhead covers form fields and boundaries around the file.
const multipartOverhead = 1 << 20

// MaterialHandler handles material endpoints.
type MaterialHandler struct {
	service *service.MaterialService
	logger  *logger.Logger
}

// NewMaterialHandler creates a new material handler.
func NewMaterialHandler(svc *service.MaterialService, log *logger.Logger) *MaterialHandler {
	return &MaterialHandler{
		service: svc,
		logger:  log,
	}
}

// Upload handles POST /api/v1/courses/{id}/materials (multipart/form-data).
func (h *MaterialHandler) Upload(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}
	courseID, ok := pathID(w, r, "id", "course id")
	if !ok {
		return
	}

	maxBytes := h.service.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, apperr.Validation("file is too large"))
			return
		}
		writeError(w, apperr.Validation("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Validation("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeError(w, apperr.Validation("failed to read file"))
		return
	}

	in := &service.CreateMaterialInput{
		CourseID: courseID,
		Title:    r.FormValue("title"),
		Kind:     model.MaterialKind(strings.TrimSpace(r.FormValue("kind"))),
		File:     data,
		Text:     r.FormValue("text"),
	}
	if assignmentID := strings.TrimSpace(r.FormValue("assignment_id")); assignmentID != "" {
		if err := middleware.ValidateID("assignment id", assignmentID); err != nil {
			writeError(w, err)
			return
		}
		in.AssignmentID = &assignmentID
	}

	material, err := h.service.Create(r.Context(), auth, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, material)
}

// List handles GET /api/v1/courses/{id}/materials
func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}
	courseID, ok := pathID(w, r, "id", "course id")
	if !ok {
		return
	}

	var assignmentID *string
	if id := r.URL.Query().Get("assignment_id"); id != "" {
		if err := middleware.ValidateID("assignment id", id); err != nil {
			writeError(w, err)
			return
		}
		assignmentID = &id
	}

	resp, err := h.service.List(r.Context(), auth, courseID, assignmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/materials/{id}
func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	auth, ok := authContext(w, r)
	if !ok {
		return
	}
	materialID, ok := pathID(w, r, "id", "material id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), auth, materialID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
