package orchestrator

import (
	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Notifier receives the orchestrator's outbound notifications: state
// transitions, monitoring samples, log lines, and raised alerts. The
// event bridge implements it; tests supply fakes.
//
// Calls are one-way and must not block for long or call back into the
// orchestrator.
type Notifier interface {
	// StateChanged reports a lifecycle transition for an instance.
	StateChanged(instanceID string, state protocol.ConnectionState, detail map[string]any)

	// SampleProduced reports one monitoring sample.
	SampleProduced(instanceID, connectionID string, m protocol.Metrics)

	// LogLine reports a gateway log entry worth fanning out.
	LogLine(level, source, message string, metadata map[string]any)

	// AlertRaised reports a newly raised alert.
	AlertRaised(alert alerting.Alert)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// StateChanged implements Notifier.
func (NopNotifier) StateChanged(string, protocol.ConnectionState, map[string]any) {}

// SampleProduced implements Notifier.
func (NopNotifier) SampleProduced(string, string, protocol.Metrics) {}

// LogLine implements Notifier.
func (NopNotifier) LogLine(string, string, string, map[string]any) {}

// AlertRaised implements Notifier.
func (NopNotifier) AlertRaised(alerting.Alert) {}
