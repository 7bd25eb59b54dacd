package storage

import (
	"context"
	"sync"
)

// DefaultRetention is the per-buffer record cap for the in-memory sink.
const DefaultRetention = 4096

// MemorySink is a thread-safe, bounded in-memory Sink. When a buffer is
// full the oldest records are dropped.
type MemorySink struct {
	mu       sync.RWMutex
	samples  []SampleRecord
	logs     []LogRecord
	capacity int
}

// NewMemorySink creates a MemorySink retaining up to capacity records
// per buffer. A capacity <= 0 uses DefaultRetention.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = DefaultRetention
	}
	return &MemorySink{capacity: capacity}
}

// InsertSample persists one monitoring sample.
func (s *MemorySink) InsertSample(ctx context.Context, rec SampleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, rec)
	if len(s.samples) > s.capacity {
		s.samples = s.samples[len(s.samples)-s.capacity:]
	}
	return nil
}

// InsertLog persists one log entry.
func (s *MemorySink) InsertLog(ctx context.Context, rec LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, rec)
	if len(s.logs) > s.capacity {
		s.logs = s.logs[len(s.logs)-s.capacity:]
	}
	return nil
}

// RecentSamples returns up to n samples for an instance, newest last.
func (s *MemorySink) RecentSamples(protocolID string, n int) []SampleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []SampleRecord
	for _, rec := range s.samples {
		if protocolID == "" || rec.ProtocolID == protocolID {
			matched = append(matched, rec)
		}
	}
	if n > 0 && len(matched) > n {
		matched = matched[len(matched)-n:]
	}

	out := make([]SampleRecord, len(matched))
	copy(out, matched)
	return out
}

// RecentLogs returns up to n log entries, newest last.
func (s *MemorySink) RecentLogs(n int) []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := s.logs
	if n > 0 && len(logs) > n {
		logs = logs[len(logs)-n:]
	}

	out := make([]LogRecord, len(logs))
	copy(out, logs)
	return out
}

// SampleCount returns the number of retained samples.
func (s *MemorySink) SampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}
