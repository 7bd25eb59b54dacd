// Package event defines the immutable, tagged, timestamped messages the
// gateway broadcasts to hub channels: monitoring samples, connection
// status changes, log entries, and alerts.
package event

import (
	"time"

	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Type tags an event. The tag doubles as the outbound wire "type" field.
type Type string

// Event type tags.
const (
	TypeMonitoringSample Type = "monitoring_data"
	TypeConnectionStatus Type = "connection_status"
	TypeLogEntry         Type = "log_entry"
	TypeAlert            Type = "alert"
)

// Channel names events are routed to. Fixed identifiers; the hub creates
// them lazily on first subscribe and never deletes them.
const (
	ChannelMonitoring  = "monitoring"
	ChannelConnections = "connections"
	ChannelLogs        = "logs"
	ChannelAlerts      = "alerts"
)

// ChannelFor returns the hub channel implied by an event's tag.
func ChannelFor(t Type) string {
	switch t {
	case TypeMonitoringSample:
		return ChannelMonitoring
	case TypeConnectionStatus:
		return ChannelConnections
	case TypeLogEntry:
		return ChannelLogs
	case TypeAlert:
		return ChannelAlerts
	}
	return ""
}

// Event is one broadcastable message. Events are immutable once
// constructed and carry no back-references to their producers.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// SamplePayload carries one monitoring sample.
type SamplePayload struct {
	ProtocolID   string           `json:"protocol_id"`
	ConnectionID string           `json:"connection_id"`
	Metrics      protocol.Metrics `json:"metrics"`
}

// StatusPayload carries one connection lifecycle state change.
type StatusPayload struct {
	ConnectionID string         `json:"connection_id"`
	Status       string         `json:"status"`
	Detail       map[string]any `json:"detail,omitempty"`
}

// LogPayload carries one log entry.
type LogPayload struct {
	Level    string         `json:"level"`
	Source   string         `json:"source"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewSample constructs a monitoring sample event.
func NewSample(protocolID, connectionID string, m protocol.Metrics) Event {
	return Event{
		Type:      TypeMonitoringSample,
		Timestamp: time.Now().UTC(),
		Data: SamplePayload{
			ProtocolID:   protocolID,
			ConnectionID: connectionID,
			Metrics:      m,
		},
	}
}

// NewStatus constructs a connection status event.
func NewStatus(connectionID string, state protocol.ConnectionState, detail map[string]any) Event {
	return Event{
		Type:      TypeConnectionStatus,
		Timestamp: time.Now().UTC(),
		Data: StatusPayload{
			ConnectionID: connectionID,
			Status:       state.String(),
			Detail:       detail,
		},
	}
}

// NewLog constructs a log entry event.
func NewLog(level, source, message string, metadata map[string]any) Event {
	return Event{
		Type:      TypeLogEntry,
		Timestamp: time.Now().UTC(),
		Data: LogPayload{
			Level:    level,
			Source:   source,
			Message:  message,
			Metadata: metadata,
		},
	}
}

// NewAlert constructs an alert event. The payload is the alert record
// itself; alerting owns its shape.
func NewAlert(alert any) Event {
	return Event{
		Type:      TypeAlert,
		Timestamp: time.Now().UTC(),
		Data:      alert,
	}
}
