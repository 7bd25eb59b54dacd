package protocol

import "context"

// Metrics is one monitoring sample for a connection instance.
// Field names are part of the wire and persistence format.
type Metrics struct {
	BytesPerSecond    float64 `json:"bytes_per_second"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	ErrorRate         float64 `json:"error_rate"`
	LatencyMS         float64 `json:"latency_ms"`
	ConnectionCount   int     `json:"connection_count"`
}

// Sampler produces monitoring samples for a running instance.
//
// Production services derive samples from real traffic counters;
// the simulator supplies synthetic generators behind the same
// interface. A Sampler must be safe for concurrent use and must not
// block on device I/O longer than the context allows.
type Sampler interface {
	// Sample returns the current metrics for the given instance.
	Sample(ctx context.Context, instanceID string) (Metrics, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context, instanceID string) (Metrics, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample(ctx context.Context, instanceID string) (Metrics, error) {
	return f(ctx, instanceID)
}
