package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fieldgate/fieldgate/pkg/protocol"
)

func TestMemorySink_SamplesBounded(t *testing.T) {
	s := NewMemorySink(10)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		err := s.InsertSample(ctx, SampleRecord{
			ProtocolID: "p1",
			Metrics:    protocol.Metrics{MessagesPerSecond: float64(i)},
			Timestamp:  time.Now(),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := s.SampleCount(); got != 10 {
		t.Errorf("expected 10 retained samples, got %d", got)
	}

	recent := s.RecentSamples("p1", 5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(recent))
	}
	// Newest last; the last inserted sample carries 24.
	if recent[4].Metrics.MessagesPerSecond != 24 {
		t.Errorf("expected newest sample last, got %v", recent[4].Metrics.MessagesPerSecond)
	}
}

func TestMemorySink_SampleFilter(t *testing.T) {
	s := NewMemorySink(0)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		id := "a"
		if i%2 == 1 {
			id = "b"
		}
		_ = s.InsertSample(ctx, SampleRecord{ProtocolID: id, Timestamp: time.Now()})
	}

	if got := len(s.RecentSamples("a", 0)); got != 2 {
		t.Errorf("expected 2 samples for a, got %d", got)
	}
	if got := len(s.RecentSamples("", 0)); got != 4 {
		t.Errorf("expected 4 samples unfiltered, got %d", got)
	}
}

func TestMemorySink_Logs(t *testing.T) {
	s := NewMemorySink(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = s.InsertLog(ctx, LogRecord{
			Level:     "info",
			Source:    "test",
			Message:   fmt.Sprintf("entry %d", i),
			Timestamp: time.Now(),
		})
	}

	logs := s.RecentLogs(0)
	if len(logs) != 3 {
		t.Fatalf("expected 3 retained logs, got %d", len(logs))
	}
	if logs[2].Message != "entry 4" {
		t.Errorf("expected newest log last, got %q", logs[2].Message)
	}
}
