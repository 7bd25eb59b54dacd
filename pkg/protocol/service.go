package protocol

import "context"

// Service is the capability contract implemented once per protocol
// family. A single Service may hold many instances (one per configured
// device endpoint), each identified by an opaque instance id.
//
// Control operations must be bounded: an unresponsive device is an
// error, never an indefinite hang. Implementations own their network
// I/O and their traffic counters; lifecycle state transitions belong to
// the orchestrator.
type Service interface {
	// Type returns the protocol family tag this service implements.
	Type() Protocol

	// Start establishes the instance's connection using the given
	// configuration. The context bounds the attempt.
	Start(ctx context.Context, instanceID string, cfg Config) error

	// Stop tears down the instance's connection and releases its
	// resources. Stopping an unknown instance returns
	// ErrInstanceNotFound.
	Stop(ctx context.Context, instanceID string) error

	// TestConnection probes the given address without mutating any
	// instance state. It is idempotent and safe to call concurrently
	// with Start. The context bounds the probe.
	TestConnection(ctx context.Context, address string, cfg Config) bool

	// Read reads one data point from a running instance.
	Read(ctx context.Context, instanceID string, point PointSpec) (any, error)

	// Write writes one data point on a running instance.
	Write(ctx context.Context, instanceID string, point PointSpec, value any) error

	// ActiveConnections returns the number of live sub-connections the
	// service currently holds.
	ActiveConnections() int

	// Sampler returns the sampler the monitoring loop polls for this
	// service's instances.
	Sampler() Sampler
}
