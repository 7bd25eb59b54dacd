// Package alerting holds alert records, their acknowledge/resolve
// lifecycle, and the threshold rule engine that raises alerts from
// monitoring samples.
package alerting

import "time"

// Severity classifies how urgent an alert is.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Status is the alert lifecycle state.
type Status string

// Alert statuses.
const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is one raised alert. Field names are part of the wire and
// persistence format.
type Alert struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Status      Status   `json:"status"`

	// Source identifies what raised the alert.
	Source     string `json:"source"`
	SourceType string `json:"source_type"`
	Category   string `json:"category"`
	ProtocolID string `json:"protocol_id,omitempty"`

	// Threshold context for rule-raised alerts.
	ThresholdValue float64 `json:"threshold_value,omitempty"`
	CurrentValue   float64 `json:"current_value,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
