// ABOUTME: HTTP server wiring for the honeypot gateway API
// ABOUTME: Owns the chi router, API-key middleware and graceful shutdown

package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/engine"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/session"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/store"
)

// TurnHandler runs one conversation turn. Satisfied by *engine.Engine.
type TurnHandler interface {
	HandleMessage(ctx context.Context, req engine.TurnRequest) (*engine.TurnResult, error)
}

// AttemptReader exposes the dispatch history recorded in the report ledger.
type AttemptReader interface {
	AttemptsForSession(ctx context.Context, sessionID string) ([]*store.ReportAttempt, error)
}

// Config holds the server's listen address and inbound API key.
type Config struct {
	HTTPAddr string
	APIKey   string // empty disables authentication
}

// Server is the HTTP face of the honeypot gateway.
type Server struct {
	turns    TurnHandler
	sessions *session.Store
	ledger   AttemptReader
	apiKey   string
	logger   *slog.Logger

	httpServer *http.Server
}

// New assembles the router and returns a server ready to Run.
func New(cfg Config, turns TurnHandler, sessions *session.Store, ledger AttemptReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		turns:    turns,
		sessions: sessions,
		ledger:   ledger,
		apiKey:   cfg.APIKey,
		logger:   logger.With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/messages", s.handleMessage)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
	})

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down http server")
	case err := <-errCh:
		return err
	}

	// Fresh context: the run context is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// requireAPIKey rejects requests whose x-api-key header does not match the
// configured key. With no key configured everything passes, which is only
// sensible for local development.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get("x-api-key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				s.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request after it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready means the ledger answers; the model backend is checked lazily
	// per turn and cannot be probed without spending quota.
	if _, err := s.ledger.AttemptsForSession(r.Context(), "readiness-probe"); err != nil {
		s.sendJSONError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
