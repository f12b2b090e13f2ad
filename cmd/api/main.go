// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/config"
	"github.com/socratic-ai/tutor-platform/internal/handler"
	"github.com/socratic-ai/tutor-platform/internal/llm"
	natsclient "github.com/socratic-ai/tutor-platform/internal/nats"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/internal/storage"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
	"github.com/socratic-ai/tutor-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var (
		log *logger.Logger
		err error
	)
	if os.Getenv("ENV") == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	defer logger.SetGlobal(log)()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "tutor-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Database
	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	// Object storage
	objects, err := storage.NewS3Storage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize object storage", zap.Error(err))
	}

	// LLM client
	llmClient, err := llm.NewClient(ctx, llm.Provider(cfg.LLMProvider), cfg.LLMAPIKey())
	if err != nil {
		log.Fatal("failed to create LLM client", zap.String("provider", cfg.LLMProvider), zap.Error(err))
	}

	checks := map[string]handler.Check{
		"database": st.Ping,
	}
	if !objects.Disabled() {
		checks["object_storage"] = objects.Health
	}

	// Live events go through JetStream when NATS is configured.
	var (
		publisher  service.EventPublisher = natsclient.NoopPublisher{}
		subscriber handler.Subscriber
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		publisher, subscriber = streamManager, streamManager

		checks["nats"] = natsClient.Health
	} else {
		log.Warn("NATS_URL is not set; live conversation streams are disabled")
	}

	// Initialize services
	courseSvc := service.NewCourseService(st, log)
	conversationSvc := service.NewConversationService(st, log)
	materialSvc := service.NewMaterialService(st, objects, service.MaterialConfig{
		MaxBytes: cfg.MaterialMaxBytes,
		URLTTL:   cfg.MaterialURLTTL,
	}, log)
	tutorSvc := service.NewTutorService(st, materialSvc, llmClient, publisher, service.TutorConfig{
		Model:         cfg.LLMModel,
		MaxTokens:     cfg.LLMMaxTokens,
		Temperature:   cfg.LLMTemperature,
		HistoryWindow: cfg.TutorHistoryWindow,
	}, log)
	analyticsSvc := service.NewAnalyticsService(st, log)

	r := handler.NewRouter(handler.Handlers{
		Health:        handler.NewHealthHandler(checks, log),
		Courses:       handler.NewCourseHandler(courseSvc, log),
		Materials:     handler.NewMaterialHandler(materialSvc, log),
		Conversations: handler.NewConversationHandler(conversationSvc, log),
		Messages:      handler.NewMessageHandler(conversationSvc, tutorSvc, log),
		Analytics:     handler.NewAnalyticsHandler(analyticsSvc, log),
		Stream:        handler.NewStreamHandler(conversationSvc, subscriber, log),
	}, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		ProfileSyncer:     courseSvc,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("llm_provider", llmClient.Name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
