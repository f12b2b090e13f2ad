package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socratic-ai/tutor-platform/internal/middleware"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Courses       *CourseHandler
	Materials     *MaterialHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Analytics     *AnalyticsHandler
	Stream        *StreamHandler
}

// RouterConfig holds the HTTP-layer settings.
type RouterConfig struct {
	JWTSecret         string
	ProfileSyncer     middleware.ProfileSyncer
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64
	AllowedOrigins    []string
}

// NewRouter builds the API router.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) *chi.Mux {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, cfg.ProfileSyncer, log))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		// Services repeat these checks against course ownership.
		teacherOnly := middleware.RequireRole(model.RoleTeacher)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
			r.Use(middleware.RequireContentType("application/json"))

			r.Post("/tutor/respond", h.Messages.Respond)
			r.With(teacherOnly).Post("/analytics", h.Analytics.Aggregate)
			r.With(teacherOnly).Post("/courses", h.Courses.Create)
			r.Post("/courses/join", h.Courses.Join)
			r.With(teacherOnly).Post("/courses/{id}/assignments", h.Courses.CreateAssignment)
			r.Post("/conversations", h.Conversations.Open)
		})

		r.Get("/courses", h.Courses.List)
		r.Get("/courses/{id}/assignments", h.Courses.ListAssignments)
		r.Get("/courses/{id}/materials", h.Materials.List)
		r.With(teacherOnly, middleware.RequireContentType("multipart/form-data")).
			Post("/courses/{id}/materials", h.Materials.Upload)
		r.With(teacherOnly).Delete("/materials/{id}", h.Materials.Delete)

		r.Get("/conversations/{id}/messages", h.Messages.List)
		r.Get("/conversations/{id}/stream", h.Stream.Stream)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})

	return r
}
