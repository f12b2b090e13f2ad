package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/middleware"
	"github.com/socratic-ai/tutor-platform/internal/model"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status its kind maps to.
func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, apperr.HTTPStatus(err), err)
}

func writeErrorStatus(w http.ResponseWriter, status int, err error) {
	body := errorResponse{Error: apperr.PublicMessage(err)}
	if e, ok := apperr.As(err); ok {
		body.Code = e.Code
		body.Retryable = e.Retryable
	}
	writeJSON(w, status, body)
}

// decodeJSON decodes a request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperr.Validation("request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		default:
			return apperr.Validation("invalid request body")
		}
	}
	return nil
}

// authContext returns the caller identity placed by the auth middleware.
func authContext(w http.ResponseWriter, r *http.Request) (model.AuthContext, bool) {
	auth, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		writeError(w, apperr.Unauthenticated("missing credentials"))
		return model.AuthContext{}, false
	}
	return auth, true
}

// pathID reads and validates a UUID path parameter.
func pathID(w http.ResponseWriter, r *http.Request, param, name string) (string, bool) {
	id := chi.URLParam(r, param)
	if err := middleware.ValidateID(name, id); err != nil {
		writeError(w, err)
		return "", false
	}
	return id, true
}
