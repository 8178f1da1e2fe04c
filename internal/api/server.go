// Package api exposes the core's read-only query surface: per-object
// health/position views and the signal stream. Everything here forwards to
// already-materialized state; no route mutates anything.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/metrics"
	"github.com/orbital/orbwatch/internal/signal"
	"github.com/orbital/orbwatch/internal/view"
)

// Availability reports which sources succeeded on their last fetch.
type Availability interface {
	Availability() map[catalog.Source]bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	tracker    *view.Tracker
	signals    signal.Store
	avail      Availability
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, tracker *view.Tracker, signals signal.Store, avail Availability) *Server {
	s := &Server{
		logger:  logger,
		tracker: tracker,
		signals: signals,
		avail:   avail,
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/objects", s.handleObjects)
		r.Get("/objects/{id}", s.handleObject)
		r.Get("/objects/{id}/position", s.handlePosition)
		r.Get("/signals", s.handleSignals)
		r.Get("/signals/{id}", s.handleSignal)
	})

	// Middleware chain: metrics -> logging -> router.
	var handler http.Handler = r
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleReadyz reports source availability: the service stays up in
// degraded mode, but which source is dark must be visible.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"ready": true}
	if s.avail != nil {
		sources := make(map[string]bool)
		for src, ok := range s.avail.Availability() {
			sources[string(src)] = ok
		}
		status["sources"] = sources
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	views, updatedAt := s.tracker.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"objects":    views,
		"updated_at": updatedAt,
	})
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid catalog id")
		return
	}
	v, ok := s.tracker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "object not tracked")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid catalog id")
		return
	}
	v, ok := s.tracker.Get(id)
	if !ok || v.Position == nil {
		writeError(w, http.StatusNotFound, "no position available")
		return
	}
	writeJSON(w, http.StatusOK, v.Position)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	var (
		events []signal.Event
		err    error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "active":
		events, err = s.signals.Active(r.Context())
	case "expired":
		events, err = s.signals.Expired(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "status must be active or expired")
		return
	}
	if err != nil {
		s.logger.Error("signal query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "signal query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": events})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}
	ev, err := s.signals.ByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, signal.ErrNotFound) {
			writeError(w, http.StatusNotFound, "signal not found")
			return
		}
		s.logger.Error("signal lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "signal lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// probePath returns true for probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
