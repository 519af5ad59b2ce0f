// Package server exposes the engines over HTTP: the pre-commit mutation
// hook consumed by the host, and the foreground management API used by the
// CLI and the configuration UI.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vectorglue/svgsync/internal/bootstrap"
	"github.com/vectorglue/svgsync/internal/config"
	"github.com/vectorglue/svgsync/internal/migration"
	syncengine "github.com/vectorglue/svgsync/internal/sync"
)

// HookVerifier authenticates an incoming hook request. A nil verifier
// accepts all requests (trusted network mode).
type HookVerifier func(r *http.Request) error

// Server wires the engines into an HTTP surface.
type Server struct {
	router       chi.Router
	logger       *slog.Logger
	engine       *syncengine.Engine
	migrator     *migration.Migrator
	reconciler   *bootstrap.Reconciler
	cfgStore     config.Store
	hookVerifier HookVerifier
	corsOrigins  []string
	startedAt    time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHookVerifier sets the authenticator for the mutation hook endpoint.
func WithHookVerifier(v HookVerifier) Option {
	return func(s *Server) {
		s.hookVerifier = v
	}
}

// WithCORSOrigins sets the origins allowed to call the management API
// (the host's configuration UI runs on a different origin).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// New creates a Server over the given components and builds its routes.
func New(engine *syncengine.Engine, migrator *migration.Migrator, reconciler *bootstrap.Reconciler, cfgStore config.Store, opts ...Option) *Server {
	s := &Server{
		engine:     engine,
		migrator:   migrator,
		reconciler: reconciler,
		cfgStore:   cfgStore,
		logger:     slog.Default(),
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buildRouter()
	return s
}

func (s *Server) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Post("/hooks/records", s.handleRecordHook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/bootstrap", s.handleBootstrap)
		r.Post("/sync", s.handleManualSync)
		r.Post("/assets", s.handleCreateAsset)
		r.Post("/migrate", s.handleMigrate)
	})

	s.router = r
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down
// gracefully with a 10 second drain window.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	}
}

// requestLogger logs each request with its duration and status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
