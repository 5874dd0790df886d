package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/engine"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/tracking"
	"github.com/foxzi/outreach/internal/worker"
)

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	coordinator *engine.Coordinator
	templates   *repository.TemplateRepository
	resumes     *repository.ResumeRepository
	recipients  *repository.RecipientRepository
	trackStore  *tracking.Store
	worker      *worker.Worker
	metrics     *metrics.Metrics
	config      *config.Config
	logger      *slog.Logger
	startTime   time.Time
}

// NewServer creates a new API server
func NewServer(
	coordinator *engine.Coordinator,
	templates *repository.TemplateRepository,
	resumes *repository.ResumeRepository,
	recipients *repository.RecipientRepository,
	trackStore *tracking.Store,
	w *worker.Worker,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		coordinator: coordinator,
		templates:   templates,
		resumes:     resumes,
		recipients:  recipients,
		trackStore:  trackStore,
		worker:      w,
		metrics:     m,
		config:      cfg,
		logger:      logger.With("component", "api"),
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware(s.metrics))

	// No auth: health, metrics and the tracking pixel.
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	s.router.Get("/t/o/{token}", s.handleTrackingPixel)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/draft", s.handleSaveDraft)
			r.Post("/{id}/start", s.handleStart)
			r.Post("/{id}/pause", s.handlePause)
			r.Post("/{id}/resume", s.handleResume)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Get("/{id}/status", s.handleStatus)
			r.Get("/{id}/recipients", s.handleListRecipients)
			r.Post("/{id}/recipients/{recipientID}/retry", s.handleRetryRecipient)
			r.Post("/{id}/retry-failed", s.handleRetryAllFailed)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.handleCreateTemplate)
			r.Get("/", s.handleListTemplates)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
		})

		r.Route("/resumes", func(r chi.Router) {
			r.Post("/", s.handleUploadResume)
			r.Get("/", s.handleListResumes)
			r.Delete("/{id}", s.handleDeleteResume)
		})

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleSaveSettings)
		r.Get("/daily-count", s.handleDailyCount)
		r.Post("/process", s.handleProcess)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the configured handler (tests drive it directly).
func (s *Server) Router() http.Handler {
	return s.router
}
