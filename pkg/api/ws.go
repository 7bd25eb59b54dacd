package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"

	"github.com/fieldgate/fieldgate/pkg/event"
	"github.com/fieldgate/fieldgate/pkg/hub"
)

// writeTimeout bounds one WebSocket write so a dead peer fails the send
// instead of stalling the hub's delivery loop.
const writeTimeout = 5 * time.Second

// maxInboundBytes caps one inbound control message.
const maxInboundBytes = 32 * 1024

// knownChannels guards the subscription endpoint; channels are a fixed
// part of the API surface.
var knownChannels = map[string]bool{
	event.ChannelMonitoring:  true,
	event.ChannelConnections: true,
	event.ChannelLogs:        true,
	event.ChannelAlerts:      true,
}

// wsConn adapts a WebSocket connection to the hub's Conn handle.
type wsConn struct {
	conn   *ws.Conn
	closed atomic.Bool
}

// Send implements hub.Conn with a bounded write.
func (c *wsConn) Send(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, ws.MessageText, data); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

// Open implements hub.Conn.
func (c *wsConn) Open() bool {
	return !c.closed.Load()
}

// Close implements hub.Conn.
func (c *wsConn) Close(reason string) error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close(ws.StatusNormalClosure, reason)
}

// handleSubscribe handles GET /api/ws/{channel}: upgrades the request,
// registers the subscriber with the hub, and runs the inbound control
// loop until the peer goes away.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	if !knownChannels[channel] {
		writeError(w, http.StatusNotFound, "unknown_channel", "no such channel: "+channel)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Debug("websocket accept failed", "channel", channel, "error", err)
		return
	}
	conn.SetReadLimit(maxInboundBytes)

	handle := &wsConn{conn: conn}
	subscriptionID, err := s.hub.Connect(channel, handle)
	if err != nil {
		s.log.Warn("subscriber registration failed", "channel", channel, "error", err)
		_ = handle.Close("registration failed")
		return
	}

	s.readLoop(r.Context(), conn, handle, channel, subscriptionID)
}

// readLoop consumes inbound control messages until the connection
// drops, then deregisters the subscriber. Malformed messages are
// ignored; the peer stays connected.
func (s *Server) readLoop(ctx context.Context, conn *ws.Conn, handle *wsConn, channel, subscriptionID string) {
	defer s.hub.Disconnect(subscriptionID)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			handle.closed.Store(true)
			s.log.Debug("subscriber read loop ended",
				"channel", channel,
				"subscription_id", subscriptionID,
				"error", err)
			return
		}
		s.hub.MarkReceived(subscriptionID)

		var ctl hub.ControlMessage
		if err := json.Unmarshal(data, &ctl); err != nil {
			s.log.Debug("ignoring malformed control message", "subscription_id", subscriptionID)
			continue
		}
		s.dispatchControl(ctl, channel, subscriptionID)
	}
}

// dispatchControl answers one inbound control message.
func (s *Server) dispatchControl(ctl hub.ControlMessage, channel, subscriptionID string) {
	switch ctl.Type {
	case hub.ControlSubscribe:
		_ = s.hub.SendToOne(subscriptionID, hub.Message{
			Type:    hub.MessageSubscriptionConfirmed,
			Channel: channel,
			Data:    map[string]any{"filters": ctl.Filters},
		})

	case hub.ControlPing:
		_ = s.hub.SendToOne(subscriptionID, hub.Message{
			Type: hub.MessagePong,
		})

	case hub.ControlAcknowledgeAlert:
		s.acknowledgeFromSubscriber(ctl, subscriptionID)

	default:
		s.log.Debug("unknown control message type",
			"type", ctl.Type,
			"subscription_id", subscriptionID)
	}
}

// acknowledgeFromSubscriber acknowledges an alert on behalf of a
// WebSocket subscriber and reports the outcome back to it.
func (s *Server) acknowledgeFromSubscriber(ctl hub.ControlMessage, subscriptionID string) {
	result := map[string]any{"alert_id": ctl.AlertID}
	if s.alerts == nil {
		result["success"] = false
		result["error"] = "alerting is not enabled"
	} else if err := s.alerts.Acknowledge(ctl.AlertID, subscriptionID); err != nil {
		result["success"] = false
		result["error"] = err.Error()
	} else {
		result["success"] = true
	}

	_ = s.hub.SendToOne(subscriptionID, hub.Message{
		Type: hub.MessageAlertAcknowledged,
		Data: result,
	})
}
