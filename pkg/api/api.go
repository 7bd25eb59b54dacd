// Package api exposes the gateway's HTTP surface: REST endpoints
// mirroring the orchestrator's lifecycle operations plus the WebSocket
// subscription endpoint feeding the broadcast hub.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldgate/fieldgate/internal/storage"
	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/hub"
	"github.com/fieldgate/fieldgate/pkg/logging"
	"github.com/fieldgate/fieldgate/pkg/orchestrator"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Config holds API server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// AuthEnabled turns on bearer-token checks for mutating endpoints.
	AuthEnabled bool

	// JWTSecret verifies API tokens. Required when AuthEnabled.
	JWTSecret string

	// Logger receives API logs. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Server is the gateway's HTTP server.
type Server struct {
	cfg    Config
	log    *slog.Logger
	orch   *orchestrator.Orchestrator
	hub    *hub.Hub
	alerts *alerting.Store
	sink   storage.Sink

	httpServer *http.Server
	startedAt  time.Time
}

// NewServer creates the API server. The alert store and sink may be nil
// when those features are disabled; their endpoints then report 404.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, h *hub.Hub, alerts *alerting.Store, sink storage.Sink) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	s := &Server{
		cfg:    cfg,
		log:    cfg.Logger,
		orch:   orch,
		hub:    h,
		alerts: alerts,
		sink:   sink,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the request mux. Mutating endpoints sit behind the auth
// middleware when auth is enabled.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/protocols", s.handleProtocolStatusAll)
	mux.HandleFunc("GET /api/protocols/{id}", s.handleProtocolStatus)
	mux.HandleFunc("GET /api/protocols/{id}/samples", s.handleProtocolSamples)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/alerts", s.handleAlertList)
	mux.HandleFunc("GET /api/ws/stats", s.handleHubStats)
	mux.HandleFunc("GET /api/ws/{channel}", s.handleSubscribe)

	mux.Handle("POST /api/protocols/{id}/start", s.requireAuth(s.handleProtocolStart))
	mux.Handle("POST /api/protocols/{id}/stop", s.requireAuth(s.handleProtocolStop))
	mux.Handle("POST /api/protocols/{id}/restart", s.requireAuth(s.handleProtocolRestart))
	mux.Handle("POST /api/protocols/test", s.requireAuth(s.handleProtocolTest))
	mux.Handle("POST /api/alerts/{id}/acknowledge", s.requireAuth(s.handleAlertAcknowledge))

	return mux
}

// Start begins serving. It returns once the listener is up; serving
// happens in the background. Errors other than graceful shutdown are
// logged.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.log.Info("api server starting", "addr", s.cfg.Addr, "auth", s.cfg.AuthEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server error", "error", err)
			errCh <- err
		}
	}()

	// Surface immediate bind failures to the caller.
	select {
	case err := <-errCh:
		return fmt.Errorf("starting api server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// startRequest is the body of POST /api/protocols/{id}/start.
type startRequest struct {
	Type   string          `json:"type"`
	Config protocol.Config `json:"config,omitempty"`
}

// testRequest is the body of POST /api/protocols/test.
type testRequest struct {
	Type    string          `json:"type"`
	Address string          `json:"address"`
	Config  protocol.Config `json:"config,omitempty"`
}

// acknowledgeRequest is the body of POST /api/alerts/{id}/acknowledge.
type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by,omitempty"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
