package bridge

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/event"
	"github.com/fieldgate/fieldgate/pkg/hub"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

type fakeConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.msgs = append(c.msgs, cp)
	return nil
}

func (c *fakeConn) Open() bool         { return true }
func (c *fakeConn) Close(string) error { return nil }

// decoded returns every received message after the connection ack.
func (c *fakeConn) decoded(t *testing.T) []hub.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]hub.Message, 0, len(c.msgs))
	for _, raw := range c.msgs {
		var msg hub.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		out = append(out, msg)
	}
	require.NotEmpty(t, out)
	require.Equal(t, hub.MessageConnectionEstablished, out[0].Type)
	return out[1:]
}

func TestBridge_RoutesByEventType(t *testing.T) {
	h := hub.New(hub.Config{})
	b := New(h, nil)

	monitoring := &fakeConn{}
	connections := &fakeConn{}
	logs := &fakeConn{}
	alerts := &fakeConn{}
	for channel, conn := range map[string]*fakeConn{
		event.ChannelMonitoring:  monitoring,
		event.ChannelConnections: connections,
		event.ChannelLogs:        logs,
		event.ChannelAlerts:      alerts,
	} {
		_, err := h.Connect(channel, conn)
		require.NoError(t, err)
	}

	b.SampleProduced("plc-1", "plc-1", protocol.Metrics{MessagesPerSecond: 5})
	b.StateChanged("plc-1", protocol.StateRunning, map[string]any{"protocol_type": "modbus-tcp"})
	b.LogLine("info", "orchestrator.plc-1", "started", nil)
	b.AlertRaised(alerting.Alert{ID: "a1", Severity: alerting.SeverityHigh})

	got := monitoring.decoded(t)
	require.Len(t, got, 1)
	assert.Equal(t, string(event.TypeMonitoringSample), got[0].Type)

	got = connections.decoded(t)
	require.Len(t, got, 1)
	assert.Equal(t, string(event.TypeConnectionStatus), got[0].Type)

	got = logs.decoded(t)
	require.Len(t, got, 1)
	assert.Equal(t, string(event.TypeLogEntry), got[0].Type)

	got = alerts.decoded(t)
	require.Len(t, got, 1)
	assert.Equal(t, string(event.TypeAlert), got[0].Type)
}

func TestBridge_StatusPayloadShape(t *testing.T) {
	h := hub.New(hub.Config{})
	b := New(h, nil)

	conn := &fakeConn{}
	_, err := h.Connect(event.ChannelConnections, conn)
	require.NoError(t, err)

	b.StateChanged("plc-1", protocol.StateError, map[string]any{"error": "timeout"})

	got := conn.decoded(t)
	require.Len(t, got, 1)

	payload, ok := got[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "plc-1", payload["connection_id"])
	assert.Equal(t, "error", payload["status"])
	assert.NotEmpty(t, got[0].Timestamp)
}

func TestBridge_NilHubIsSafe(t *testing.T) {
	b := New(nil, nil)

	assert.NotPanics(t, func() {
		b.SampleProduced("plc-1", "plc-1", protocol.Metrics{})
		b.StateChanged("plc-1", protocol.StateRunning, nil)
		b.LogLine("info", "src", "msg", nil)
		b.AlertRaised(alerting.Alert{ID: "a1"})
	})
}
