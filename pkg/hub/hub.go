package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldgate/fieldgate/internal/id"
	"github.com/fieldgate/fieldgate/pkg/event"
	"github.com/fieldgate/fieldgate/pkg/logging"
)

// Error is a simple error type for hub errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors.
var (
	// ErrEmptyChannel is returned when connecting with an empty
	// channel name.
	ErrEmptyChannel = Error("channel name cannot be empty")

	// ErrNilConn is returned when connecting a nil handle.
	ErrNilConn = Error("subscriber handle cannot be nil")

	// ErrSubscriberNotFound is returned by unicast sends to an unknown
	// subscription id.
	ErrSubscriberNotFound = Error("subscriber not found")
)

// SnapshotFunc produces the initial payload items pushed to a new
// subscriber of a channel (for example, recent unacknowledged alerts on
// the alerts channel). Each item becomes one event message.
type SnapshotFunc func() []event.Event

// Config holds hub tuning.
type Config struct {
	// HeartbeatInterval is the cadence of heartbeat broadcasts.
	// Defaults to 30s.
	HeartbeatInterval time.Duration

	// CleanupInterval is the cadence of stale-subscriber scans.
	// Defaults to 120s.
	CleanupInterval time.Duration

	// StaleAfter is how long a subscriber may go without a heartbeat
	// stamp before the cleanup loop evicts it. Defaults to 5m.
	StaleAfter time.Duration

	// Logger receives hub logs. Defaults to a no-op logger.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 120 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
}

// Hub fans events out to live subscribers grouped by channel and evicts
// subscribers that stop responding. It is safe for concurrent use.
type Hub struct {
	cfg Config
	log *slog.Logger

	mu        sync.RWMutex
	channels  map[string]map[string]*subscriber // channel -> id -> subscriber
	subs      map[string]*subscriber            // id -> subscriber
	snapshots map[string]SnapshotFunc

	wg sync.WaitGroup
}

// New creates a Hub. Call Start to launch the heartbeat and cleanup
// loops.
func New(cfg Config) *Hub {
	cfg.applyDefaults()
	return &Hub{
		cfg:       cfg,
		log:       cfg.Logger,
		channels:  make(map[string]map[string]*subscriber),
		subs:      make(map[string]*subscriber),
		snapshots: make(map[string]SnapshotFunc),
	}
}

// SetSnapshot registers the initial-payload producer for a channel.
// Must be called before subscribers connect to that channel.
func (h *Hub) SetSnapshot(channel string, fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots[channel] = fn
}

// Start launches the heartbeat and cleanup loops. They stop when ctx is
// cancelled; Wait blocks until both have exited.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(2)
	go h.runHeartbeat(ctx)
	go h.runCleanup(ctx)
}

// Wait blocks until the background loops have exited.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// Connect registers a subscriber handle on a channel, creating the
// channel lazily, and sends the connection_established acknowledgement.
// For channels with a registered snapshot the initial payload follows
// the acknowledgement.
func (h *Hub) Connect(channel string, conn Conn) (string, error) {
	if channel == "" {
		return "", ErrEmptyChannel
	}
	if conn == nil {
		return "", ErrNilConn
	}

	now := time.Now()
	sub := newSubscriber(id.Subscription(), channel, conn, now)

	h.mu.Lock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]*subscriber)
	}
	h.channels[channel][sub.id] = sub
	h.subs[sub.id] = sub
	channelCount := len(h.channels[channel])
	total := len(h.subs)
	snapshot := h.snapshots[channel]
	h.mu.Unlock()

	h.log.Info("subscriber connected",
		"channel", channel,
		"subscription_id", sub.id,
		"channel_subscribers", channelCount)

	ack := Message{
		Type:      MessageConnectionEstablished,
		Channel:   channel,
		Timestamp: Stamp(now),
		Data: map[string]any{
			"subscription_id":     sub.id,
			"channel_subscribers": channelCount,
			"total_subscribers":   total,
		},
	}
	if err := h.sendMessage(sub, ack); err != nil {
		h.evict(sub, "acknowledgement failed")
		return "", err
	}

	if snapshot != nil {
		for _, ev := range snapshot() {
			if err := h.sendEvent(sub, ev); err != nil {
				h.evict(sub, "snapshot send failed")
				return "", err
			}
		}
	}

	return sub.id, nil
}

// Disconnect removes a subscriber from its channel. It is idempotent
// and safe to call from error-handling paths after a failed send.
func (h *Hub) Disconnect(subscriptionID string) {
	h.mu.Lock()
	sub, ok := h.subs[subscriptionID]
	if ok {
		h.remove(sub)
	}
	h.mu.Unlock()

	if ok {
		_ = sub.conn.Close("disconnected")
		h.log.Info("subscriber disconnected", "channel", sub.channel, "subscription_id", sub.id)
	}
}

// Broadcast delivers an event to every current subscriber of a channel,
// stamping it with the server time. Returns the number of successful
// deliveries. Broadcasting to an unknown or empty channel delivers to
// nobody and never fails.
func (h *Hub) Broadcast(channel string, ev event.Event) int {
	subs := h.snapshotChannel(channel)
	if len(subs) == 0 {
		return 0
	}

	data, err := json.Marshal(h.envelope(ev))
	if err != nil {
		h.log.Error("marshaling event", "channel", channel, "error", err)
		return 0
	}

	sent := 0
	for _, sub := range subs {
		if err := sub.send(data); err != nil {
			h.evict(sub, "send failed")
			continue
		}
		sent++
	}
	return sent
}

// SendToOne delivers a message to a single subscriber. Same best-effort
// semantics as Broadcast: a failed send evicts the subscriber.
func (h *Hub) SendToOne(subscriptionID string, msg Message) error {
	h.mu.RLock()
	sub, ok := h.subs[subscriptionID]
	h.mu.RUnlock()

	if !ok {
		return ErrSubscriberNotFound
	}
	if err := h.sendMessage(sub, msg); err != nil {
		h.evict(sub, "unicast send failed")
		return err
	}
	return nil
}

// MarkReceived counts an inbound message from a subscriber. The
// transport calls this from its read loop.
func (h *Hub) MarkReceived(subscriptionID string) {
	h.mu.RLock()
	sub, ok := h.subs[subscriptionID]
	h.mu.RUnlock()
	if ok {
		sub.received.Add(1)
	}
}

// Stats returns the subscriber count per channel plus detail snapshots.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	channels := make(map[string]int, len(h.channels))
	for name, subs := range h.channels {
		channels[name] = len(subs)
	}

	details := make([]SubscriberInfo, 0, len(h.subs))
	for _, sub := range h.subs {
		details = append(details, sub.info())
	}

	return map[string]any{
		"channels":            channels,
		"total_subscribers":   len(h.subs),
		"subscriber_details":  details,
		"heartbeat_interval":  h.cfg.HeartbeatInterval.String(),
		"staleness_threshold": h.cfg.StaleAfter.String(),
	}
}

// SubscriberCount returns the subscriber count for one channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// runHeartbeat broadcasts a heartbeat to every non-empty channel on a
// fixed interval, stamping each responsive subscriber's last-heartbeat
// time. Half-open connections the transport has not reported closed
// fail the send here and are evicted.
func (h *Hub) runHeartbeat(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// Heartbeat performs one heartbeat pass over all non-empty channels.
func (h *Hub) Heartbeat() {
	now := time.Now()

	h.mu.RLock()
	counts := make(map[string]int, len(h.channels))
	var targets []*subscriber
	for name, subs := range h.channels {
		counts[name] = len(subs)
		for _, sub := range subs {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg := Message{
		Type:      MessageHeartbeat,
		Timestamp: Stamp(now),
		Data: map[string]any{
			"server_time":     Stamp(now),
			"active_channels": counts,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshaling heartbeat", "error", err)
		return
	}

	sent := 0
	for _, sub := range targets {
		if err := sub.send(data); err != nil {
			h.evict(sub, "heartbeat send failed")
			continue
		}
		sub.stampHeartbeat(now)
		sent++
	}
	h.log.Debug("heartbeat sent", "subscribers", sent)
}

// runCleanup scans for stale or closed subscribers on a fixed interval.
func (h *Hub) runCleanup(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Cleanup()
		}
	}
}

// Cleanup performs one eviction pass: any subscriber whose last
// heartbeat is older than the staleness threshold, or whose handle
// reports closed, is removed. Returns the number evicted.
func (h *Hub) Cleanup() int {
	now := time.Now()

	h.mu.RLock()
	var stale []*subscriber
	for _, sub := range h.subs {
		if now.Sub(sub.heartbeatAt()) > h.cfg.StaleAfter || !sub.conn.Open() {
			stale = append(stale, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range stale {
		h.evict(sub, "stale connection")
	}

	if len(stale) > 0 {
		h.log.Info("cleaned up stale subscribers", "count", len(stale))
	}
	return len(stale)
}

// snapshotChannel returns the current subscribers of a channel without
// holding the lock during delivery.
func (h *Hub) snapshotChannel(channel string) []*subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.channels[channel]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub)
	}
	return out
}

// envelope wraps an event in the outbound wire format.
func (h *Hub) envelope(ev event.Event) Message {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Message{
		Type:      string(ev.Type),
		Data:      ev.Data,
		Timestamp: Stamp(ts),
	}
}

func (h *Hub) sendEvent(sub *subscriber, ev event.Event) error {
	data, err := json.Marshal(h.envelope(ev))
	if err != nil {
		return err
	}
	return sub.send(data)
}

func (h *Hub) sendMessage(sub *subscriber, msg Message) error {
	if msg.Timestamp == "" {
		msg.Timestamp = Stamp(time.Now())
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return sub.send(data)
}

// evict removes a subscriber and closes its handle. Never raises; a
// delivery error stays inside the hub.
func (h *Hub) evict(sub *subscriber, reason string) {
	h.mu.Lock()
	_, present := h.subs[sub.id]
	if present {
		h.remove(sub)
	}
	h.mu.Unlock()

	if present {
		_ = sub.conn.Close(reason)
		h.log.Debug("subscriber evicted",
			"channel", sub.channel,
			"subscription_id", sub.id,
			"reason", reason)
	}
}

// remove deletes the subscriber from both maps. Caller holds h.mu.
func (h *Hub) remove(sub *subscriber) {
	delete(h.subs, sub.id)
	if subs, ok := h.channels[sub.channel]; ok {
		delete(subs, sub.id)
	}
	// Channels persist for the life of the process; an empty set stays.
}
