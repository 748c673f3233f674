// Package api provides the HTTP API server for recordvault.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/recordvault/recordvault/internal/config"
	"github.com/recordvault/recordvault/internal/importer"
	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/scheduler"
	"github.com/recordvault/recordvault/internal/store"
)

// VaultStore defines the store operations the API needs.
type VaultStore interface {
	ListCases() ([]*store.Case, error)
	GetCase(id string) (*store.Case, error)
	CreateCase(name, subject, notes string) (*store.Case, error)
	ListImports(caseID string) ([]*store.Import, error)
	GetAttachment(id int64) (*store.AttachmentView, error)
	GetStats() (*store.Stats, error)
}

// ArchiveImporter runs uploaded archives through the import pipeline.
type ArchiveImporter interface {
	Import(ctx context.Context, caseID, archivePath string, opts importer.Options) (*importer.Summary, error)
}

// WatchScheduler defines the scheduler operations the API needs.
type WatchScheduler interface {
	Status() []WatchStatus
	IsRunning() bool
	TriggerScan() error
}

// WatchStatus is an alias for scheduler.WatchStatus — single source of truth.
type WatchStatus = scheduler.WatchStatus

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	store       VaultStore
	engine      query.Engine
	importer    ArchiveImporter
	scheduler   WatchScheduler
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server. Any of store, engine, importer and
// scheduler may be nil; the endpoints needing them answer 503.
func NewServer(cfg *config.Config, st VaultStore, engine query.Engine, imp ArchiveImporter, sched WatchScheduler, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		engine:    engine,
		importer:  imp,
		scheduler: sched,
		logger:    logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)

	// CORS is disabled unless origins are configured.
	r.Use(CORSMiddleware(CORSConfig{
		AllowedOrigins: s.cfg.API.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         86400,
	}))

	if s.cfg.API.RateLimit > 0 {
		burst := s.cfg.API.RateLimit / 4
		if burst < 5 {
			burst = 5
		}
		s.rateLimiter = NewRateLimiter(float64(s.cfg.API.RateLimit)/60, burst)
		r.Use(RateLimitMiddleware(s.rateLimiter))
	}

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Read endpoints share a short timeout.
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))

			r.Get("/stats", s.handleStats)

			r.Route("/cases", func(r chi.Router) {
				r.Get("/", s.handleListCases)
				r.Post("/", s.handleCreateCase)
				r.Route("/{caseID}", func(r chi.Router) {
					r.Get("/", s.handleGetCase)
					r.Get("/imports", s.handleListImports)
					r.Get("/conversations", s.handleListConversations)
					r.Get("/search", s.handleSearch)
					r.Get("/stats", s.handleCaseStats)
				})
			})

			r.Get("/conversations/{id}/messages", s.handleListMessages)
			r.Get("/attachments/{id}", s.handleGetAttachment)

			r.Get("/scheduler/status", s.handleSchedulerStatus)
			r.Post("/scheduler/scan", s.handleTriggerScan)
		})

		// Archive imports can run for minutes.
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(15 * time.Minute))
			r.Post("/cases/{caseID}/imports", s.handleUploadArchive)
		})
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.API.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.API.BindAddress
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.API.Port))

	if s.cfg.API.Key == "" {
		s.logger.Warn("API server running without authentication — set [api] key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 16 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key configured
		if s.cfg.API.Key == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			authHeader = r.Header.Get("X-API-Key")
		}
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			authHeader = authHeader[7:]
		}

		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(s.cfg.API.Key)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
