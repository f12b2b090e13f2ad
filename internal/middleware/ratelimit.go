package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
)

// RateLimit limits requests per IP. NewRouter puts it in front of the
// unauthenticated health and metrics routes.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitHandler(windowLength)),
	)
}

// UserRateLimit limits requests per authenticated user, falling back to IP.
// It must run after Auth.
func UserRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if auth, ok := AuthFromContext(r.Context()); ok && auth.UserID != "" {
				return "user:" + auth.UserID, nil
			}
			return "ip:" + r.RemoteAddr, nil
		}),
		httprate.WithLimitHandler(limitHandler(windowLength)),
	)
}

func limitHandler(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", retryAfter)
		writeError(w, &apperr.Error{
			Kind:      apperr.KindUpstream,
			Code:      apperr.CodeRateLimited,
			Message:   "rate limit exceeded",
			Retryable: true,
		})
	}
}
