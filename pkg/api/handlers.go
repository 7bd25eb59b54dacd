package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: errCode, Message: message})
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"instances":      s.orch.InstanceCount(),
	})
}

// handleProtocolStatusAll handles GET /api/protocols.
func (s *Server) handleProtocolStatusAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.StatusAll())
}

// handleProtocolStatus handles GET /api/protocols/{id}.
func (s *Server) handleProtocolStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status(r.PathValue("id")))
}

// handleProtocolStart handles POST /api/protocols/{id}/start.
func (s *Server) handleProtocolStart(w http.ResponseWriter, r *http.Request) {
	instanceID := r.PathValue("id")

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "missing_type", "protocol type is required")
		return
	}

	err := s.orch.Start(r.Context(), instanceID, protocol.Protocol(req.Type), req.Config)
	switch {
	case errors.Is(err, protocol.ErrUnknownProtocol):
		writeError(w, http.StatusBadRequest, "unknown_protocol", err.Error())
	case errors.Is(err, protocol.ErrInstanceExists):
		writeError(w, http.StatusConflict, "already_running", err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, "start_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, s.orch.Status(instanceID))
	}
}

// handleProtocolStop handles POST /api/protocols/{id}/stop.
func (s *Server) handleProtocolStop(w http.ResponseWriter, r *http.Request) {
	instanceID := r.PathValue("id")
	if err := s.orch.Stop(r.Context(), instanceID); err != nil {
		writeError(w, http.StatusBadGateway, "stop_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Status(instanceID))
}

// handleProtocolRestart handles POST /api/protocols/{id}/restart.
func (s *Server) handleProtocolRestart(w http.ResponseWriter, r *http.Request) {
	instanceID := r.PathValue("id")
	err := s.orch.Restart(r.Context(), instanceID)
	switch {
	case errors.Is(err, protocol.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "unknown_instance", err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, "restart_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, s.orch.Status(instanceID))
	}
}

// handleProtocolTest handles POST /api/protocols/test.
func (s *Server) handleProtocolTest(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "missing_type", "protocol type is required")
		return
	}

	ok := s.orch.TestConnection(r.Context(), protocol.Protocol(req.Type), req.Address, req.Config)
	writeJSON(w, http.StatusOK, map[string]any{
		"type":    req.Type,
		"address": req.Address,
		"success": ok,
	})
}

// handleProtocolSamples handles GET /api/protocols/{id}/samples.
func (s *Server) handleProtocolSamples(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusNotFound, "not_enabled", "sample history is not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.sink.RecentSamples(r.PathValue("id"), queryLimit(r, 100)))
}

// handleLogs handles GET /api/logs.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusNotFound, "not_enabled", "log history is not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.sink.RecentLogs(queryLimit(r, 100)))
}

// handleAlertList handles GET /api/alerts.
func (s *Server) handleAlertList(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusNotFound, "not_enabled", "alerting is not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.alerts.List())
}

// handleAlertAcknowledge handles POST /api/alerts/{id}/acknowledge.
func (s *Server) handleAlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusNotFound, "not_enabled", "alerting is not enabled")
		return
	}

	var req acknowledgeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.AcknowledgedBy == "" {
		req.AcknowledgedBy = "api"
	}

	alertID := r.PathValue("id")
	err := s.alerts.Acknowledge(alertID, req.AcknowledgedBy)
	switch {
	case errors.Is(err, alerting.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "unknown_alert", err.Error())
	case errors.Is(err, alerting.ErrAlreadyAcknowledged):
		writeError(w, http.StatusConflict, "already_acknowledged", err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "acknowledge_failed", err.Error())
	default:
		alert, _ := s.alerts.Get(alertID)
		writeJSON(w, http.StatusOK, alert)
	}
}

// handleHubStats handles GET /api/ws/stats.
func (s *Server) handleHubStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Stats())
}

// queryLimit reads a positive "limit" query parameter, with a default.
func queryLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}
