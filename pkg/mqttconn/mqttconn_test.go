package mqttconn

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/pkg/broker"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

func startBroker(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	b, err := broker.New(broker.Config{Port: port})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Stop(ctx)
	})

	// Give the listener a moment to come up.
	time.Sleep(100 * time.Millisecond)
	return port
}

func TestService_StartStop(t *testing.T) {
	port := startBroker(t)
	s := NewService(nil)
	ctx := context.Background()

	cfg := protocol.Config{"host": "127.0.0.1", "port": port}
	require.NoError(t, s.Start(ctx, "mq-1", cfg))
	assert.Equal(t, 1, s.ActiveConnections())

	require.NoError(t, s.Stop(ctx, "mq-1"))
	assert.Equal(t, 0, s.ActiveConnections())
	assert.ErrorIs(t, s.Stop(ctx, "mq-1"), protocol.ErrInstanceNotFound)
}

func TestService_InvalidConfig(t *testing.T) {
	s := NewService(nil)
	err := s.Start(context.Background(), "mq-1", protocol.Config{})
	assert.ErrorIs(t, err, protocol.ErrInvalidConfig)
}

func TestService_PublishAndRead(t *testing.T) {
	port := startBroker(t)
	s := NewService(nil)
	ctx := context.Background()

	cfg := protocol.Config{
		"host":   "127.0.0.1",
		"port":   port,
		"topics": []string{"sensors/#"},
	}
	require.NoError(t, s.Start(ctx, "mq-1", cfg))
	defer s.Stop(ctx, "mq-1")

	point := protocol.PointSpec{Address: "sensors/temp"}

	// Nothing received yet.
	_, err := s.Read(ctx, "mq-1", point)
	assert.ErrorIs(t, err, protocol.ErrUnsupportedPoint)

	require.NoError(t, s.Write(ctx, "mq-1", point, 21.5))

	require.Eventually(t, func() bool {
		v, err := s.Read(ctx, "mq-1", point)
		return err == nil && v == "21.5"
	}, 5*time.Second, 50*time.Millisecond)

	m, err := s.Sampler().Sample(ctx, "mq-1")
	require.NoError(t, err)
	assert.Positive(t, m.MessagesPerSecond)
}

func TestService_TestConnection(t *testing.T) {
	port := startBroker(t)
	s := NewService(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.True(t, s.TestConnection(ctx, "127.0.0.1", protocol.Config{"port": port}))

	shortCtx, cancelShort := context.WithTimeout(context.Background(), time.Second)
	defer cancelShort()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := l.Addr().(*net.TCPAddr).Port
	l.Close()
	assert.False(t, s.TestConnection(shortCtx, "127.0.0.1", protocol.Config{"port": closedPort}))
}

func TestBrokerURL(t *testing.T) {
	u, err := brokerURL(protocol.Config{"broker_url": "tcp://broker:1883"})
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", u)

	u, err = brokerURL(protocol.Config{"host": "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("tcp://10.0.0.5:%d", defaultPort), u)

	_, err = brokerURL(protocol.Config{})
	assert.ErrorIs(t, err, protocol.ErrInvalidConfig)
}
