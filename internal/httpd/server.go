package httpd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/rutmehta/halo"
	"github.com/rutmehta/halo/internal/config"
)

// Server exposes the face search engine over HTTP.
type Server struct {
	config     *config.Config
	engine     *halo.Engine
	router     *chi.Mux
	httpServer *http.Server
	limiter    *rate.Limiter
}

// NewServer creates a web server around an engine.
func NewServer(cfg *config.Config, eng *halo.Engine) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:  cfg,
		engine:  eng,
		router:  r,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))
	r.Use(s.rateLimit)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/healthz", s.healthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.search)
		r.Post("/faces", s.addFace)
		r.Delete("/faces/{id}", s.deleteFace)
		r.Get("/stats", s.stats)
	})
}

// rateLimit rejects requests above the configured rate with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
