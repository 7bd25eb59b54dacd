package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/pkg/event"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// fakeConn is a controllable subscriber handle for tests.
type fakeConn struct {
	mu     sync.Mutex
	sends  [][]byte
	stamps []time.Time
	failed bool
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed || c.closed {
		return Error("connection gone")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.sends = append(c.sends, cp)
	c.stamps = append(c.stamps, time.Now())
	return nil
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = true
}

func (c *fakeConn) messages(t *testing.T) []Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.sends))
	for _, raw := range c.sends {
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

// heartbeatTimes returns the arrival times of heartbeat messages.
// Safe to call from require.Eventually's polling goroutine.
func (c *fakeConn) heartbeatTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Time
	for i, raw := range c.sends {
		var m Message
		if json.Unmarshal(raw, &m) == nil && m.Type == MessageHeartbeat {
			out = append(out, c.stamps[i])
		}
	}
	return out
}

func newTestHub() *Hub {
	return New(Config{})
}

func TestConnect_SendsAcknowledgement(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}

	subID, err := h.Connect(event.ChannelMonitoring, conn)
	require.NoError(t, err)
	require.NotEmpty(t, subID)

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageConnectionEstablished, msgs[0].Type)
	assert.Equal(t, event.ChannelMonitoring, msgs[0].Channel)
	assert.NotEmpty(t, msgs[0].Timestamp)

	data, ok := msgs[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["channel_subscribers"])
}

func TestConnect_Validation(t *testing.T) {
	h := newTestHub()

	_, err := h.Connect("", &fakeConn{})
	assert.ErrorIs(t, err, ErrEmptyChannel)

	_, err = h.Connect(event.ChannelLogs, nil)
	assert.ErrorIs(t, err, ErrNilConn)
}

func TestConnect_SnapshotPushed(t *testing.T) {
	h := newTestHub()
	h.SetSnapshot(event.ChannelAlerts, func() []event.Event {
		return []event.Event{
			event.NewAlert(map[string]any{"id": "a1", "title": "high error rate"}),
			event.NewAlert(map[string]any{"id": "a2", "title": "device unreachable"}),
		}
	})

	conn := &fakeConn{}
	_, err := h.Connect(event.ChannelAlerts, conn)
	require.NoError(t, err)

	msgs := conn.messages(t)
	require.Len(t, msgs, 3) // ack + two snapshot alerts
	assert.Equal(t, string(event.TypeAlert), msgs[1].Type)
	assert.Equal(t, string(event.TypeAlert), msgs[2].Type)
}

func TestBroadcast_NoSubscribers(t *testing.T) {
	h := newTestHub()

	sent := h.Broadcast("monitoring", event.NewLog("info", "test", "nobody home", nil))
	assert.Equal(t, 0, sent)

	sent = h.Broadcast("never-subscribed", event.NewLog("info", "test", "still nobody", nil))
	assert.Equal(t, 0, sent)
}

// Scenario: two subscribers on alerts, one broadcast, both receive
// exactly one copy with matching payload.
func TestBroadcast_FanOut(t *testing.T) {
	h := newTestHub()
	a, b := &fakeConn{}, &fakeConn{}

	_, err := h.Connect(event.ChannelAlerts, a)
	require.NoError(t, err)
	_, err = h.Connect(event.ChannelAlerts, b)
	require.NoError(t, err)

	sent := h.Broadcast(event.ChannelAlerts, event.NewAlert(map[string]any{"id": "a9"}))
	assert.Equal(t, 2, sent)

	for _, conn := range []*fakeConn{a, b} {
		msgs := conn.messages(t)
		require.Len(t, msgs, 2) // ack + alert
		assert.Equal(t, string(event.TypeAlert), msgs[1].Type)
		data, ok := msgs[1].Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "a9", data["id"])
	}
}

// Scenario: a subscriber dies mid-stream; the broadcast still reaches
// the survivor and the dead one is evicted immediately.
func TestBroadcast_DeadSubscriberEvicted(t *testing.T) {
	h := newTestHub()
	alive, dead := &fakeConn{}, &fakeConn{}

	_, err := h.Connect(event.ChannelConnections, alive)
	require.NoError(t, err)
	_, err = h.Connect(event.ChannelConnections, dead)
	require.NoError(t, err)

	dead.fail()

	sent := h.Broadcast(event.ChannelConnections,
		event.NewStatus("plc-1", protocol.StateRunning, nil))
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, h.SubscriberCount(event.ChannelConnections))

	msgs := alive.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, string(event.TypeConnectionStatus), msgs[1].Type)
}

func TestBroadcast_PerSubscriberOrder(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	_, err := h.Connect(event.ChannelLogs, conn)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h.Broadcast(event.ChannelLogs, event.NewLog("info", "seq", string(rune('a'+i)), nil))
	}

	msgs := conn.messages(t)
	require.Len(t, msgs, 6)
	for i := 1; i < 6; i++ {
		data, ok := msgs[i].Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, string(rune('a'+i-1)), data["message"])
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}

	subID, err := h.Connect(event.ChannelMonitoring, conn)
	require.NoError(t, err)

	h.Disconnect(subID)
	h.Disconnect(subID) // second call is a no-op
	h.Disconnect("sub_nonexistent")

	assert.Equal(t, 0, h.SubscriberCount(event.ChannelMonitoring))
	assert.False(t, conn.Open())
}

func TestSendToOne(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}

	subID, err := h.Connect(event.ChannelConnections, conn)
	require.NoError(t, err)

	err = h.SendToOne(subID, Message{Type: MessagePong})
	require.NoError(t, err)

	msgs := conn.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessagePong, msgs[1].Type)
	assert.NotEmpty(t, msgs[1].Timestamp)

	err = h.SendToOne("sub_unknown", Message{Type: MessagePong})
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestHeartbeat_StampsSubscribers(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}

	subID, err := h.Connect(event.ChannelMonitoring, conn)
	require.NoError(t, err)

	// Age the subscriber, then heartbeat should refresh the stamp.
	h.mu.RLock()
	sub := h.subs[subID]
	h.mu.RUnlock()
	sub.lastHeartbeat.Store(time.Now().Add(-time.Hour).UnixNano())

	h.Heartbeat()

	assert.WithinDuration(t, time.Now(), sub.heartbeatAt(), time.Second)

	msgs := conn.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageHeartbeat, msgs[1].Type)
	data, ok := msgs[1].Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "active_channels")
}

func TestHeartbeat_EvictsOnSendFailure(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}

	_, err := h.Connect(event.ChannelLogs, conn)
	require.NoError(t, err)
	conn.fail()

	h.Heartbeat()

	assert.Equal(t, 0, h.SubscriberCount(event.ChannelLogs))
}

func TestStart_HeartbeatLoopInterval(t *testing.T) {
	interval := 20 * time.Millisecond
	h := New(Config{
		HeartbeatInterval: interval,
		CleanupInterval:   time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)

	conn := &fakeConn{}
	_, err := h.Connect(event.ChannelMonitoring, conn)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(conn.heartbeatTimes()) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	h.Wait()

	// Consecutive heartbeats arrive roughly one interval apart.
	times := conn.heartbeatTimes()
	require.GreaterOrEqual(t, len(times), 3)
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.Greater(t, gap, interval/4)
		assert.Less(t, gap, 25*interval)
	}

	// Cancellation stopped the loop; nothing more arrives.
	n := len(conn.heartbeatTimes())
	time.Sleep(3 * interval)
	assert.Equal(t, n, len(conn.heartbeatTimes()))
}

func TestStart_CleanupLoopEvictsClosed(t *testing.T) {
	h := New(Config{
		HeartbeatInterval: time.Hour,
		CleanupInterval:   20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	defer func() {
		cancel()
		h.Wait()
	}()

	conn := &fakeConn{}
	_, err := h.Connect(event.ChannelLogs, conn)
	require.NoError(t, err)

	conn.Close("peer went away")

	require.Eventually(t, func() bool {
		return h.SubscriberCount(event.ChannelLogs) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCleanup_EvictsStale(t *testing.T) {
	h := newTestHub()
	fresh, stale, closed := &fakeConn{}, &fakeConn{}, &fakeConn{}

	_, err := h.Connect(event.ChannelMonitoring, fresh)
	require.NoError(t, err)
	staleID, err := h.Connect(event.ChannelMonitoring, stale)
	require.NoError(t, err)
	_, err = h.Connect(event.ChannelMonitoring, closed)
	require.NoError(t, err)

	h.mu.RLock()
	h.subs[staleID].lastHeartbeat.Store(time.Now().Add(-10 * time.Minute).UnixNano())
	h.mu.RUnlock()
	closed.Close("peer went away")

	evicted := h.Cleanup()

	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, h.SubscriberCount(event.ChannelMonitoring))
	assert.False(t, stale.Open())
}

func TestCleanup_NothingToDo(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	_, err := h.Connect(event.ChannelAlerts, conn)
	require.NoError(t, err)

	assert.Equal(t, 0, h.Cleanup())
	assert.Equal(t, 1, h.SubscriberCount(event.ChannelAlerts))
}

func TestStats(t *testing.T) {
	h := newTestHub()
	_, err := h.Connect(event.ChannelMonitoring, &fakeConn{})
	require.NoError(t, err)
	_, err = h.Connect(event.ChannelAlerts, &fakeConn{})
	require.NoError(t, err)

	stats := h.Stats()
	assert.Equal(t, 2, stats["total_subscribers"])
	channels, ok := stats["channels"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 1, channels[event.ChannelMonitoring])
	assert.Equal(t, 1, channels[event.ChannelAlerts])
}
