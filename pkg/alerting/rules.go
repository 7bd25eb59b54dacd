package alerting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/fieldgate/fieldgate/internal/id"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Rule is one threshold rule evaluated against every monitoring sample.
// Expression is an expr-lang boolean over the sample's metric fields,
// e.g. "error_rate > 0.05" or "latency_ms > 100 && messages_per_second < 1".
type Rule struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Expression string   `json:"expression"`
	Severity   Severity `json:"severity"`

	// Threshold is recorded on raised alerts for display; it does not
	// affect evaluation.
	Threshold float64 `json:"threshold,omitempty"`

	// Cooldown suppresses repeat alerts for the same rule and instance.
	// Zero means the default (1 minute).
	Cooldown time.Duration `json:"cooldown,omitempty"`
}

const defaultCooldown = time.Minute

// Engine compiles rules once and evaluates them against samples,
// inserting raised alerts into the store.
type Engine struct {
	store *Store

	mu       sync.Mutex
	rules    []compiledRule
	lastFire map[string]time.Time // rule id + instance id -> last raise
}

type compiledRule struct {
	rule    Rule
	program *vm.Program
}

// NewEngine creates an Engine writing raised alerts to store.
func NewEngine(store *Store) *Engine {
	return &Engine{
		store:    store,
		lastFire: make(map[string]time.Time),
	}
}

// AddRule compiles and registers a rule.
func (e *Engine) AddRule(r Rule) error {
	if r.Expression == "" {
		return fmt.Errorf("rule %q: expression cannot be empty", r.Name)
	}
	if r.ID == "" {
		r.ID = id.Short()
	}
	if r.Severity == "" {
		r.Severity = SeverityMedium
	}

	program, err := expr.Compile(r.Expression, expr.Env(sampleEnv("", protocol.Metrics{})), expr.AsBool())
	if err != nil {
		return fmt.Errorf("rule %q: compile %q: %w", r.Name, r.Expression, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, compiledRule{rule: r, program: program})
	return nil
}

// RuleCount returns the number of registered rules.
func (e *Engine) RuleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules)
}

// Evaluate runs every rule against one sample and returns the alerts
// raised. Raised alerts are already inserted into the store. A rule
// error skips that rule only.
func (e *Engine) Evaluate(instanceID string, m protocol.Metrics) []Alert {
	e.mu.Lock()
	rules := make([]compiledRule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	env := sampleEnv(instanceID, m)
	now := time.Now().UTC()

	var raised []Alert
	for _, cr := range rules {
		out, err := expr.Run(cr.program, env)
		if err != nil {
			continue
		}
		fired, ok := out.(bool)
		if !ok || !fired {
			continue
		}
		if !e.shouldFire(cr.rule, instanceID, now) {
			continue
		}

		a := Alert{
			ID:             id.UUID(),
			Title:          cr.rule.Name,
			Description:    fmt.Sprintf("rule %q matched on instance %s", cr.rule.Expression, instanceID),
			Severity:       cr.rule.Severity,
			Status:         StatusActive,
			Source:         instanceID,
			SourceType:     "protocol",
			Category:       "threshold",
			ProtocolID:     instanceID,
			ThresholdValue: cr.rule.Threshold,
			CurrentValue:   currentValue(cr.rule.Expression, m),
			CreatedAt:      now,
		}
		e.store.Insert(a)
		raised = append(raised, a)
	}
	return raised
}

// shouldFire applies the per-rule, per-instance cooldown.
func (e *Engine) shouldFire(r Rule, instanceID string, now time.Time) bool {
	cooldown := r.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	key := r.ID + "\x00" + instanceID

	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastFire[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	e.lastFire[key] = now
	return true
}

// currentValue picks the value of the first metric the expression
// references, recorded on raised alerts as threshold context.
func currentValue(expression string, m protocol.Metrics) float64 {
	best := -1
	var val float64
	for key, v := range map[string]float64{
		"bytes_per_second":    m.BytesPerSecond,
		"messages_per_second": m.MessagesPerSecond,
		"error_rate":          m.ErrorRate,
		"latency_ms":          m.LatencyMS,
		"connection_count":    float64(m.ConnectionCount),
	} {
		idx := strings.Index(expression, key)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
			val = v
		}
	}
	return val
}

// sampleEnv builds the expression environment for one sample. Keys
// mirror the sample's wire field names.
func sampleEnv(instanceID string, m protocol.Metrics) map[string]any {
	return map[string]any{
		"protocol_id":         instanceID,
		"bytes_per_second":    m.BytesPerSecond,
		"messages_per_second": m.MessagesPerSecond,
		"error_rate":          m.ErrorRate,
		"latency_ms":          m.LatencyMS,
		"connection_count":    m.ConnectionCount,
	}
}
