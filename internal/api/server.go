// Package api exposes the HTTP control surface: run control, checkpoint
// resume and remote interaction, and the admin endpoints for delivery
// records, sender credentials and settings.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/checkpoint"
	"github.com/leadscout/leadscout/internal/dedup"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/runner"
	"github.com/leadscout/leadscout/internal/settings"
)

// Config controls the HTTP server surface.
type Config struct {
	// APIKey, when set, is required on every /v1 request via X-API-Key.
	APIKey string
	// AdminToken guards the /v1/admin routes via X-Admin-Token.
	AdminToken string
	// RequestTimeout bounds handler execution.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the runner, checkpoint machine and stores.
type Server struct {
	router   chi.Router
	runner   *runner.Runner
	machine  *checkpoint.Machine
	store    dedup.Store
	settings settings.Store
	senders  *settings.SenderPool
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	run *runner.Runner,
	machine *checkpoint.Machine,
	store dedup.Store,
	settingsStore settings.Store,
	senders *settings.SenderPool,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		runner:   run,
		machine:  machine,
		store:    store,
		settings: settingsStore,
		senders:  senders,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(s.apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/status", s.getStatus)
		r.Post("/run", s.startRun)
		r.Post("/run/stop", s.stopRun)
		r.Post("/resume", s.resume)
		r.Route("/remote", func(r chi.Router) {
			r.Post("/click", s.remoteClick)
			r.Post("/type", s.remoteType)
			r.Post("/key", s.remoteKey)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminTokenMiddleware(cfg.AdminToken))
			r.Get("/records", s.listRecords)
			r.Post("/records/purge", s.purgeRecords)
			r.Get("/senders", s.listSenders)
			r.Post("/senders", s.addSender)
			r.Delete("/senders/{identity}", s.removeSender)
			r.Get("/settings", s.getSettings)
			r.Put("/settings", s.putSettings)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The dedup store is the only hard dependency for correct operation.
	if _, err := s.store.Contains(r.Context(), "native:0"); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "dedup store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) adminTokenMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" || r.Header.Get("X-Admin-Token") != expected {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
