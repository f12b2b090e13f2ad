package middleware

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
)

// MaxBodySize caps request bodies at limit bytes.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeError(w, apperr.Validation(fmt.Sprintf("request body exceeds %d bytes", limit)))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireContentType rejects requests with a body whose media type is not
// one of the allowed types.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodDelete || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err == nil {
				for _, a := range allowed {
					if mediaType == a {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			writeError(w, &apperr.Error{
				Kind:    apperr.KindValidation,
				Message: "unsupported content type",
			})
		})
	}
}

// ValidateID checks that a path identifier is a UUID.
func ValidateID(name, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation(fmt.Sprintf("invalid %s format", name))
	}
	return nil
}
