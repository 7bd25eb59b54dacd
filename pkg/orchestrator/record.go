package orchestrator

import (
	"context"
	"time"

	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// record is the orchestrator's bookkeeping for one connection instance.
// All fields are guarded by the orchestrator's mutex; the monitoring
// loop takes that mutex when it bumps the sample counters and
// lastActivity.
type record struct {
	id           string
	protocolType protocol.Protocol
	config       protocol.Config
	state        protocol.ConnectionState
	svc          protocol.Service

	startedAt    time.Time
	lastActivity time.Time
	samples      int64
	sampleErrors int64

	cancel context.CancelFunc
	done   chan struct{}
}

// monitorAlive reports whether the record's monitoring loop is running.
func (r *record) monitorAlive() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// StatusSnapshot is a read-only view of one instance, safe to hand to
// callers; producing it never blocks on the instance's I/O.
type StatusSnapshot struct {
	ID                string                   `json:"protocol_id"`
	ProtocolType      protocol.Protocol        `json:"protocol_type,omitempty"`
	State             protocol.ConnectionState `json:"state"`
	StartedAt         time.Time                `json:"started_at,omitzero"`
	UptimeSeconds     float64                  `json:"uptime_seconds"`
	LastActivity      time.Time                `json:"last_activity,omitzero"`
	ActiveConnections int                      `json:"active_connections"`
	MonitorAlive      bool                     `json:"is_monitoring"`
	Samples           int64                    `json:"samples"`
	SampleErrors      int64                    `json:"sample_errors"`
	Configuration     protocol.Config          `json:"configuration,omitempty"`
}

// snapshot builds a StatusSnapshot. Caller holds the orchestrator lock.
func (r *record) snapshot(now time.Time) StatusSnapshot {
	s := StatusSnapshot{
		ID:            r.id,
		ProtocolType:  r.protocolType,
		State:         r.state,
		StartedAt:     r.startedAt,
		LastActivity:  r.lastActivity,
		Samples:       r.samples,
		SampleErrors:  r.sampleErrors,
		MonitorAlive:  r.monitorAlive(),
		Configuration: r.config.Clone(),
	}
	if r.state == protocol.StateRunning && !r.startedAt.IsZero() {
		s.UptimeSeconds = now.Sub(r.startedAt).Seconds()
	}
	if r.svc != nil {
		s.ActiveConnections = r.svc.ActiveConnections()
	}
	return s
}
