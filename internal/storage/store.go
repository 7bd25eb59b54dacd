// Package storage provides the persistence sink for monitoring samples
// and log entries.
//
// Persistence guarantees are out of scope for the gateway; the default
// implementation keeps a bounded in-memory window so the API can serve
// recent history. A durable implementation can replace it behind the
// same interface.
package storage

import (
	"context"
	"time"

	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// SampleRecord is one persisted monitoring sample.
type SampleRecord struct {
	ProtocolID   string           `json:"protocol_id"`
	ConnectionID string           `json:"connection_id,omitempty"`
	Metrics      protocol.Metrics `json:"metrics"`
	Timestamp    time.Time        `json:"timestamp"`
}

// LogRecord is one persisted log entry.
type LogRecord struct {
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink accepts monitoring samples and log entries for persistence.
// Implementations must be safe for concurrent use; every monitoring
// loop writes to the same sink.
type Sink interface {
	// InsertSample persists one monitoring sample.
	InsertSample(ctx context.Context, rec SampleRecord) error

	// InsertLog persists one log entry.
	InsertLog(ctx context.Context, rec LogRecord) error

	// RecentSamples returns up to n samples for an instance, newest
	// last. An empty protocolID returns samples for all instances.
	RecentSamples(protocolID string, n int) []SampleRecord

	// RecentLogs returns up to n log entries, newest last.
	RecentLogs(n int) []LogRecord
}
