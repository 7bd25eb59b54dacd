package hub

import (
	"time"
)

// Message is the outbound wire envelope for everything the hub sends.
// Field names are part of the subscription transport schema.
type Message struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Outbound message types that are not event tags.
const (
	MessageConnectionEstablished = "connection_established"
	MessageHeartbeat             = "heartbeat"
	MessageSubscriptionConfirmed = "subscription_confirmed"
	MessagePong                  = "pong"
	MessageAlertAcknowledged     = "alert_acknowledged"
)

// Inbound control message types.
const (
	ControlSubscribe        = "subscribe"
	ControlPing             = "ping"
	ControlAcknowledgeAlert = "acknowledge_alert"
)

// ControlMessage is an inbound message from a subscriber.
type ControlMessage struct {
	Type    string         `json:"type"`
	Filters map[string]any `json:"filters,omitempty"`
	AlertID string         `json:"alert_id,omitempty"`
}

// Stamp formats a timestamp the way every outbound message carries it:
// RFC 3339 in UTC.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
