package hub

import (
	"sync"
	"sync/atomic"
	"time"
)

// Conn is the send-capable handle the hub holds for one subscriber.
// The WebSocket transport implements it; tests supply fakes.
type Conn interface {
	// Send delivers one serialized message. It must fail rather than
	// block indefinitely on a dead peer.
	Send(data []byte) error

	// Open reports whether the underlying transport is still usable.
	Open() bool

	// Close tears down the transport. Closing twice is harmless.
	Close(reason string) error
}

// subscriber is the hub's bookkeeping for one connected handle.
// A subscriber belongs to exactly one channel for its whole life.
type subscriber struct {
	id      string
	channel string
	conn    Conn

	connectedAt   time.Time
	lastHeartbeat atomic.Int64 // unix nanos
	sent          atomic.Int64
	received      atomic.Int64

	// sendMu serializes sends so per-subscriber delivery order matches
	// broadcast call order.
	sendMu sync.Mutex
}

func newSubscriber(id, channel string, conn Conn, now time.Time) *subscriber {
	s := &subscriber{
		id:          id,
		channel:     channel,
		conn:        conn,
		connectedAt: now,
	}
	s.lastHeartbeat.Store(now.UnixNano())
	return s
}

// send delivers one payload, counting it on success.
func (s *subscriber) send(data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := s.conn.Send(data); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

func (s *subscriber) heartbeatAt() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

func (s *subscriber) stampHeartbeat(now time.Time) {
	s.lastHeartbeat.Store(now.UnixNano())
}

// SubscriberInfo is a read-only snapshot of one subscriber.
type SubscriberInfo struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	MessagesSent  int64     `json:"messages_sent"`
	MessagesRecv  int64     `json:"messages_received"`
}

func (s *subscriber) info() SubscriberInfo {
	return SubscriberInfo{
		ID:            s.id,
		Channel:       s.channel,
		ConnectedAt:   s.connectedAt,
		LastHeartbeat: s.heartbeatAt(),
		MessagesSent:  s.sent.Load(),
		MessagesRecv:  s.received.Load(),
	}
}
