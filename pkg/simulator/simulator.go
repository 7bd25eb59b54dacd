// Package simulator provides a synthetic protocol service for protocol
// families the gateway has no native driver for yet. Instances accept
// any configuration, hold a small point store for reads and writes, and
// produce plausible jittered metrics, so the full lifecycle, monitoring,
// and broadcast paths can run against simulated field devices.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Families lists the protocol tags served by simulated instances.
var Families = []protocol.Protocol{
	protocol.ProtocolOPCUA,
	protocol.ProtocolProfinet,
	protocol.ProtocolEthernetIP,
	protocol.ProtocolCANopen,
	protocol.ProtocolBACnet,
}

// RegisterAll registers one simulated service factory per family.
func RegisterAll(registry *protocol.Registry) error {
	for _, family := range Families {
		family := family
		if err := registry.Register(family, func() (protocol.Service, error) {
			return New(family), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// instance is one simulated device connection.
type instance struct {
	connectedAt time.Time
	points      map[string]any
	failureRate float64
}

// Service is a simulated protocol.Service. Configuration keys:
//
//	simulate_failure   bool    Start returns an error
//	start_delay_ms     int     Start sleeps this long first
//	failure_rate       float   error_rate reported by samples
type Service struct {
	typ protocol.Protocol
	rng *rand.Rand

	mu        sync.Mutex
	instances map[string]*instance
}

// New creates a simulated service for one protocol family.
func New(typ protocol.Protocol) *Service {
	return &Service{
		typ:       typ,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		instances: make(map[string]*instance),
	}
}

// Type implements protocol.Service.
func (s *Service) Type() protocol.Protocol { return s.typ }

// Start implements protocol.Service.
func (s *Service) Start(ctx context.Context, instanceID string, cfg protocol.Config) error {
	if delay := cfg.GetInt("start_delay_ms", 0); delay > 0 {
		select {
		case <-time.After(time.Duration(delay) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if cfg.GetBool("simulate_failure", false) {
		return fmt.Errorf("simulated %s device refused the connection", s.typ)
	}

	failureRate := 0.0
	if v, ok := cfg["failure_rate"]; ok {
		if f, ok := v.(float64); ok {
			failureRate = f
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instanceID] = &instance{
		connectedAt: time.Now(),
		points:      make(map[string]any),
		failureRate: failureRate,
	}
	return nil
}

// Stop implements protocol.Service.
func (s *Service) Stop(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[instanceID]; !ok {
		return fmt.Errorf("%w: %s", protocol.ErrInstanceNotFound, instanceID)
	}
	delete(s.instances, instanceID)
	return nil
}

// TestConnection implements protocol.Service. The probe succeeds unless
// the configuration asks for a simulated failure.
func (s *Service) TestConnection(_ context.Context, _ string, cfg protocol.Config) bool {
	return !cfg.GetBool("simulate_failure", false)
}

// Read implements protocol.Service. Unwritten points read as a jittered
// float, so dashboards have something to show.
func (s *Service) Read(_ context.Context, instanceID string, point protocol.PointSpec) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrNotConnected, instanceID)
	}
	if v, ok := inst.points[point.Address]; ok {
		return v, nil
	}
	return 20 + s.rng.Float64()*10, nil
}

// Write implements protocol.Service.
func (s *Service) Write(_ context.Context, instanceID string, point protocol.PointSpec, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrNotConnected, instanceID)
	}
	inst.points[point.Address] = value
	return nil
}

// ActiveConnections implements protocol.Service.
func (s *Service) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Sampler implements protocol.Service. Samples are jittered around a
// stable baseline per instance so charts look like live traffic.
func (s *Service) Sampler() protocol.Sampler {
	return protocol.SamplerFunc(func(_ context.Context, instanceID string) (protocol.Metrics, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		inst, ok := s.instances[instanceID]
		if !ok {
			return protocol.Metrics{}, fmt.Errorf("%w: %s", protocol.ErrNotConnected, instanceID)
		}
		return protocol.Metrics{
			BytesPerSecond:    400 + s.rng.Float64()*200,
			MessagesPerSecond: 8 + s.rng.Float64()*4,
			ErrorRate:         inst.failureRate,
			LatencyMS:         5 + s.rng.Float64()*20,
			ConnectionCount:   1,
		}, nil
	})
}
