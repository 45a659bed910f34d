// Package server exposes the datagate library components over HTTP. The
// core packages know nothing about HTTP; every handler here just maps
// structured results (limited, is_injection, anomaly) to status codes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kuwago-ai/datagate/internal/alerts"
	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/events"
	"github.com/kuwago-ai/datagate/internal/guard"
	"github.com/kuwago-ai/datagate/internal/logger"
	"github.com/kuwago-ai/datagate/internal/pii"
	"github.com/kuwago-ai/datagate/internal/ratelimit"
	"github.com/kuwago-ai/datagate/internal/usage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server wires the gate components to HTTP routes.
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	redactor   *pii.Redactor
	guard      *guard.Guard
	limiter    *ratelimit.Limiter
	tracker    *usage.Tracker
	alertStore *alerts.Store
	hub        *events.Hub
	throttle   *rate.Limiter
	router     *mux.Router
	server     *http.Server
}

// New creates a server instance and its owned components. This is the
// composition root: stores and trackers are constructed here and injected,
// never reached through package globals.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	redactor, err := pii.New(cfg.Privacy, log.WithComponent("pii"))
	if err != nil {
		return nil, fmt.Errorf("failed to create redactor: %w", err)
	}

	inputGuard := guard.New(cfg.Guard, log.WithComponent("guard"))

	limiter, err := ratelimit.New(cfg.RateLimit, log.WithComponent("ratelimit"))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	tracker := usage.New(cfg.Usage, log.WithComponent("usage"))
	tracker.StartSweep(cfg.Usage.SweepInterval)

	var alertStore *alerts.Store
	if cfg.Alerts.Enabled {
		alertStore, err = alerts.NewStore(cfg.Alerts, log.WithComponent("alerts"))
		if err != nil {
			return nil, fmt.Errorf("failed to create alert store: %w", err)
		}
	}

	hub := events.NewHub(cfg.Events, log.WithComponent("events"))

	var throttle *rate.Limiter
	if cfg.RateLimit.Global.Enabled {
		throttle = rate.NewLimiter(rate.Limit(cfg.RateLimit.Global.RequestsPerSec), cfg.RateLimit.Global.Burst)
	}

	s := &Server{
		config:     cfg,
		logger:     log.WithComponent("server"),
		redactor:   redactor,
		guard:      inputGuard,
		limiter:    limiter,
		tracker:    tracker,
		alertStore: alertStore,
		hub:        hub,
		throttle:   throttle,
		router:     mux.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.Events.Enabled {
		s.router.HandleFunc(s.config.Events.Path, s.hub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.throttleMiddleware)
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api.Handle("/redact", s.rateLimitMiddleware("redact", http.HandlerFunc(s.handleRedact))).Methods("POST")
	api.Handle("/redact/csv", s.rateLimitMiddleware("redact", http.HandlerFunc(s.handleRedactCSV))).Methods("POST")
	api.Handle("/guard", s.rateLimitMiddleware("guard", http.HandlerFunc(s.handleGuard))).Methods("POST")
	api.HandleFunc("/usage", s.handleUsage).Methods("GET")
	api.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
}

// Start starts the HTTP server and the event hub.
func (s *Server) Start() error {
	s.logger.Info("Starting datagate server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("privacy_enabled", s.config.Privacy.Enabled),
		zap.String("guard_mode", s.config.Guard.Mode),
		zap.String("rate_limit_store", s.config.RateLimit.Store),
	)

	go s.hub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and releases component resources.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping datagate server")

	// Quiesce the listener before stopping components so in-flight requests
	// never hit a dead hub or tracker.
	err := s.server.Shutdown(ctx)

	s.hub.Stop()
	s.tracker.Close()
	if cerr := s.limiter.Close(); cerr != nil {
		s.logger.Error("Failed to close rate limiter", zap.Error(cerr))
	}
	if s.alertStore != nil {
		if cerr := s.alertStore.Close(); cerr != nil {
			s.logger.Error("Failed to close alert store", zap.Error(cerr))
		}
	}

	return err
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"datagate",
		"version":"0.1.0",
		"privacy_enabled":%t,
		"guard_mode":"%s",
		"enabled_detectors":%d,
		"event_clients":%d
	}`, s.config.Privacy.Enabled, s.config.Guard.Mode, len(s.redactor.EnabledRules()), s.hub.ClientCount())
}
