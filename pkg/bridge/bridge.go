// Package bridge connects the orchestrator's outbound notifications to
// the broadcast hub. The dependency is one-way: the bridge knows both
// sides, neither side knows the other.
package bridge

import (
	"log/slog"

	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/event"
	"github.com/fieldgate/fieldgate/pkg/hub"
	"github.com/fieldgate/fieldgate/pkg/logging"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Bridge implements orchestrator.Notifier by wrapping each notification
// in an event and broadcasting it to the event's channel. Delivery is
// best effort; a hub with no subscribers simply drops the event.
type Bridge struct {
	hub *hub.Hub
	log *slog.Logger
}

// New creates a Bridge broadcasting through h. A nil logger defaults to
// a no-op logger.
func New(h *hub.Hub, log *slog.Logger) *Bridge {
	if log == nil {
		log = logging.Nop()
	}
	return &Bridge{hub: h, log: log}
}

// StateChanged broadcasts a connection status event.
func (b *Bridge) StateChanged(instanceID string, state protocol.ConnectionState, detail map[string]any) {
	if b.hub == nil {
		return
	}
	ev := event.NewStatus(instanceID, state, detail)
	b.hub.Broadcast(event.ChannelFor(ev.Type), ev)
}

// SampleProduced broadcasts a monitoring sample event.
func (b *Bridge) SampleProduced(instanceID, connectionID string, m protocol.Metrics) {
	if b.hub == nil {
		return
	}
	ev := event.NewSample(instanceID, connectionID, m)
	b.hub.Broadcast(event.ChannelFor(ev.Type), ev)
}

// LogLine broadcasts a log entry event.
func (b *Bridge) LogLine(level, source, message string, metadata map[string]any) {
	if b.hub == nil {
		return
	}
	ev := event.NewLog(level, source, message, metadata)
	b.hub.Broadcast(event.ChannelFor(ev.Type), ev)
}

// AlertRaised broadcasts an alert event.
func (b *Bridge) AlertRaised(alert alerting.Alert) {
	if b.hub == nil {
		return
	}
	ev := event.NewAlert(alert)
	sent := b.hub.Broadcast(event.ChannelFor(ev.Type), ev)
	b.log.Debug("alert broadcast", "alert_id", alert.ID, "delivered", sent)
}
