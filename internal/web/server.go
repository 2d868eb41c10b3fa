package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/state"
	"github.com/rs/zerolog"
)

const COMPONENT_NAME = "lvm-leverage-vault-monitor"

// StatusSource is the read side of the runtime counters.
type StatusSource interface {
	Snapshot() state.Status
}

// Config holds the configuration for creating a StatusServer.
type Config struct {
	Port    string
	Status  StatusSource
	Metrics http.Handler // optional; /metrics is not routed when nil

	// Staleness after which /health reports DEGRADED. Zero disables the check.
	MaxOperationAge time.Duration
	Now             func() time.Time // optional; defaults to time.Now
}

// StatusServer serves read-only health, status and metrics endpoints.
type StatusServer struct {
	router *mux.Router
	server *http.Server
	cfg    Config
	logger zerolog.Logger
}

// NewStatusServer creates a new status server instance.
func NewStatusServer(cfg Config) (*StatusServer, error) {
	if cfg.Status == nil {
		return nil, errors.New("status source cannot be nil")
	}
	if cfg.Port == "" {
		cfg.Port = config.DEFAULT_STATUS_PORT
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &StatusServer{
		router: mux.NewRouter(),
		cfg:    cfg,
		logger: logger.GetForComponent("status_server"),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *StatusServer) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics).Methods(http.MethodGet)
	}

	s.router.Use(s.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

// Start blocks serving until Shutdown is called. A clean shutdown returns nil.
func (s *StatusServer) Start() error {
	s.logger.Info().Str("port", s.cfg.Port).Msg("Starting status server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests up to ctx.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth reports liveness and whether operation cycles are still completing.
func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.cfg.Status.Snapshot()

	degraded := false
	var lastAge *int64
	if status.LastOperation != nil {
		age := int64(s.cfg.Now().Sub(*status.LastOperation).Seconds())
		lastAge = &age
		if s.cfg.MaxOperationAge > 0 && time.Duration(age)*time.Second > s.cfg.MaxOperationAge {
			degraded = true
		}
	} else if s.cfg.MaxOperationAge > 0 && time.Duration(status.UptimeSeconds)*time.Second > s.cfg.MaxOperationAge {
		degraded = true
	}

	overall := "OK"
	code := http.StatusOK
	if degraded {
		overall = "DEGRADED"
		code = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overall,
		"timestamp": s.cfg.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"uptime_seconds":   status.UptimeSeconds,
		},
		"component": map[string]interface{}{
			"name":    COMPONENT_NAME,
			"version": config.BOT_VERSION,
		},
		"last_operation_age_seconds": lastAge,
	}
	s.writeJSONResponse(w, code, response)
}

// handleStatus returns the runtime counters.
func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.cfg.Status.Snapshot())
}

// writeJSONResponse writes a JSON response
func (s *StatusServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// loggingMiddleware logs HTTP requests
func (s *StatusServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
