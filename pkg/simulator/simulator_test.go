package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/pkg/protocol"
)

func TestService_Lifecycle(t *testing.T) {
	s := New(protocol.ProtocolOPCUA)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "dev-1", nil))
	assert.Equal(t, 1, s.ActiveConnections())

	m, err := s.Sampler().Sample(ctx, "dev-1")
	require.NoError(t, err)
	assert.Positive(t, m.MessagesPerSecond)
	assert.Equal(t, 1, m.ConnectionCount)

	require.NoError(t, s.Stop(ctx, "dev-1"))
	assert.Equal(t, 0, s.ActiveConnections())

	assert.ErrorIs(t, s.Stop(ctx, "dev-1"), protocol.ErrInstanceNotFound)
	_, err = s.Sampler().Sample(ctx, "dev-1")
	assert.ErrorIs(t, err, protocol.ErrNotConnected)
}

func TestService_SimulatedFailure(t *testing.T) {
	s := New(protocol.ProtocolProfinet)
	cfg := protocol.Config{"simulate_failure": true}

	assert.Error(t, s.Start(context.Background(), "dev-1", cfg))
	assert.Equal(t, 0, s.ActiveConnections())
	assert.False(t, s.TestConnection(context.Background(), "10.0.0.9", cfg))
	assert.True(t, s.TestConnection(context.Background(), "10.0.0.9", nil))
}

func TestService_ReadWrite(t *testing.T) {
	s := New(protocol.ProtocolBACnet)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, "dev-1", nil))

	point := protocol.PointSpec{Address: "analog-input-1", DataType: "float"}

	// Unwritten points read as synthetic values.
	v, err := s.Read(ctx, "dev-1", point)
	require.NoError(t, err)
	assert.IsType(t, float64(0), v)

	require.NoError(t, s.Write(ctx, "dev-1", point, 42.5))
	v, err = s.Read(ctx, "dev-1", point)
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)

	assert.ErrorIs(t, s.Write(ctx, "ghost", point, 1), protocol.ErrNotConnected)
}

func TestService_FailureRateReflectedInSamples(t *testing.T) {
	s := New(protocol.ProtocolCANopen)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, "dev-1", protocol.Config{"failure_rate": 0.25}))

	m, err := s.Sampler().Sample(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, m.ErrorRate)
}

func TestRegisterAll(t *testing.T) {
	registry := protocol.NewRegistry()
	require.NoError(t, RegisterAll(registry))

	for _, family := range Families {
		assert.True(t, registry.Known(family), family)
		svc, err := registry.Lookup(family)
		require.NoError(t, err)
		assert.Equal(t, family, svc.Type())
	}
}
