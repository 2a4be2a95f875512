// Package api serves the operator HTTP surface: health probes, metrics,
// and read-only prediction/history endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/auth"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/health"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/history"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/metrics"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/poll"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
)

// Engine is the prediction surface the API reads from.
type Engine interface {
	Objects() []poll.Object
	Upcoming(ctx context.Context, catalogID int) (poll.Prediction, error)
	PositionNow(ctx context.Context, catalogID int) (poll.Position, error)
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server. hist may be nil when history
// recording is disabled.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, engine Engine, hist *history.Store) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/objects", objectsHandler(engine))
	mux.HandleFunc("GET /api/v1/passes/{catnr}", passesHandler(logger, engine))
	mux.HandleFunc("GET /api/v1/position/{catnr}", positionHandler(logger, engine))
	mux.HandleFunc("GET /api/v1/history", historyHandler(logger, hist))

	// Middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// catalogParam parses the {catnr} path segment.
func catalogParam(r *http.Request) (int, bool) {
	catnr, err := strconv.Atoi(r.PathValue("catnr"))
	if err != nil || catnr <= 0 {
		return 0, false
	}
	return catnr, true
}

func objectsHandler(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"objects": engine.Objects()})
	}
}

func passesHandler(logger *slog.Logger, engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catnr, ok := catalogParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid catalog number")
			return
		}

		pred, err := engine.Upcoming(r.Context(), catnr)
		if err != nil {
			respondEngineError(w, logger, "upcoming", err)
			return
		}
		writeJSON(w, http.StatusOK, pred)
	}
}

func positionHandler(logger *slog.Logger, engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catnr, ok := catalogParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid catalog number")
			return
		}

		pos, err := engine.PositionNow(r.Context(), catnr)
		if err != nil {
			respondEngineError(w, logger, "position", err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	}
}

func historyHandler(logger *slog.Logger, hist *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hist == nil {
			writeError(w, http.StatusNotFound, "history recording is disabled")
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 1000 {
				writeError(w, http.StatusBadRequest, "limit must be 1-1000")
				return
			}
			limit = n
		}

		recentPasses, err := hist.RecentPasses(r.Context(), limit)
		if err != nil {
			logger.Error("history query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
		recentNotifications, err := hist.RecentNotifications(r.Context(), limit)
		if err != nil {
			logger.Error("history query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"passes":        recentPasses,
			"notifications": recentNotifications,
		})
	}
}

func respondEngineError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, poll.ErrUnknownObject):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tle.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "orbital elements unavailable")
	default:
		logger.Error("engine query failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "prediction failed")
	}
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
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
