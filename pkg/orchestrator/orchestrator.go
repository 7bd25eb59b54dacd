package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldgate/fieldgate/internal/storage"
	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/logging"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Config holds orchestrator tuning.
type Config struct {
	// SampleInterval is the monitoring loop cadence. Defaults to 1s.
	SampleInterval time.Duration

	// StartTimeout bounds one service Start call. Defaults to 30s.
	StartTimeout time.Duration

	// StopTimeout bounds one service Stop call. Defaults to 10s.
	StopTimeout time.Duration

	// TestTimeout bounds TestConnection. Defaults to 30s.
	TestTimeout time.Duration

	// RestartPause is the mandatory pause between the stop and start
	// halves of a restart, letting the transport release sockets.
	// Defaults to 2s.
	RestartPause time.Duration

	// MonitorStopWait bounds how long Stop waits for the monitoring
	// loop to exit. Defaults to 5s.
	MonitorStopWait time.Duration

	// Logger receives orchestrator logs. Defaults to a no-op logger.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.SampleInterval <= 0 {
		c.SampleInterval = time.Second
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	if c.TestTimeout <= 0 {
		c.TestTimeout = 30 * time.Second
	}
	if c.RestartPause <= 0 {
		c.RestartPause = 2 * time.Second
	}
	if c.MonitorStopWait <= 0 {
		c.MonitorStopWait = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
}

// Seed is one configured instance loaded from the configuration store
// to feed StartAll at boot.
type Seed struct {
	ID        string
	Type      protocol.Protocol
	Config    protocol.Config
	AutoStart bool
}

// retained remembers the last configuration an instance started with,
// so restart works after the running record is gone.
type retained struct {
	protocolType protocol.Protocol
	config       protocol.Config
}

// Orchestrator owns the connection-instance registry and lifecycle.
type Orchestrator struct {
	cfg      Config
	log      *slog.Logger
	registry *protocol.Registry
	sink     storage.Sink
	notifier Notifier
	alerts   *alerting.Engine // optional

	mu        sync.RWMutex
	instances map[string]*record
	known     map[string]retained
}

// New creates an Orchestrator. The alert engine may be nil.
func New(cfg Config, registry *protocol.Registry, sink storage.Sink, notifier Notifier, alerts *alerting.Engine) *Orchestrator {
	cfg.applyDefaults()
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		cfg:       cfg,
		log:       cfg.Logger,
		registry:  registry,
		sink:      sink,
		notifier:  notifier,
		alerts:    alerts,
		instances: make(map[string]*record),
		known:     make(map[string]retained),
	}
}

// Start brings one instance from stopped (or error) to running:
// validates the protocol type, invokes the service's Start bounded by
// StartTimeout, and on success launches the monitoring loop. A second
// Start on a starting or running instance is deterministically
// rejected with ErrInstanceExists. Any failure degrades the record to
// the error state and is returned as a value; nothing is thrown past
// this boundary.
func (o *Orchestrator) Start(ctx context.Context, instanceID string, protocolType protocol.Protocol, cfg protocol.Config) error {
	if !o.registry.Known(protocolType) {
		// Configuration error: the record stays stopped.
		o.log.Error("start rejected", "instance", instanceID, "type", protocolType, "error", protocol.ErrUnknownProtocol)
		return fmt.Errorf("%w: %s", protocol.ErrUnknownProtocol, protocolType)
	}

	o.mu.Lock()
	if existing, ok := o.instances[instanceID]; ok {
		if existing.state == protocol.StateStarting || existing.state == protocol.StateRunning {
			o.mu.Unlock()
			return fmt.Errorf("%w: %s", protocol.ErrInstanceExists, instanceID)
		}
	}
	rec := &record{
		id:           instanceID,
		protocolType: protocolType,
		config:       cfg.Clone(),
		state:        protocol.StateStarting,
	}
	o.instances[instanceID] = rec
	o.known[instanceID] = retained{protocolType: protocolType, config: cfg.Clone()}
	o.mu.Unlock()

	o.notifier.StateChanged(instanceID, protocol.StateStarting, map[string]any{"protocol_type": protocolType.String()})

	svc, err := o.registry.Lookup(protocolType)
	if err != nil {
		return o.failStart(instanceID, err)
	}

	startCtx, cancel := context.WithTimeout(ctx, o.cfg.StartTimeout)
	err = svc.Start(startCtx, instanceID, cfg)
	cancel()
	if err != nil {
		return o.failStart(instanceID, err)
	}

	now := time.Now()

	o.mu.Lock()
	if cur, ok := o.instances[instanceID]; !ok || cur != rec || rec.state != protocol.StateStarting {
		// A Stop raced in while the service's Start was in flight and
		// tore the record down. Undo the service-side start instead of
		// committing an instance no operation could ever reach again.
		o.mu.Unlock()
		stopCtx, cancelStop := context.WithTimeout(context.Background(), o.cfg.StopTimeout)
		if stopErr := svc.Stop(stopCtx, instanceID); stopErr != nil {
			o.log.Error("undoing interrupted start", "instance", instanceID, "error", stopErr)
		}
		cancelStop()
		o.log.Warn("instance stopped during start", "instance", instanceID)
		return fmt.Errorf("starting %s: instance stopped during start", instanceID)
	}
	loopCtx, loopCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	rec.svc = svc
	rec.state = protocol.StateRunning
	rec.startedAt = now
	rec.lastActivity = now
	rec.cancel = loopCancel
	rec.done = done
	o.mu.Unlock()

	go o.runMonitor(loopCtx, rec, done)

	o.log.Info("instance started", "instance", instanceID, "type", protocolType)
	o.notifier.StateChanged(instanceID, protocol.StateRunning, map[string]any{"protocol_type": protocolType.String()})
	o.logEvent(ctx, "info", instanceID, fmt.Sprintf("started %s instance", protocolType))
	return nil
}

// failStart degrades a starting record to the error state.
func (o *Orchestrator) failStart(instanceID string, cause error) error {
	o.mu.Lock()
	if rec, ok := o.instances[instanceID]; ok {
		rec.state = protocol.StateError
	}
	o.mu.Unlock()

	o.log.Error("instance start failed", "instance", instanceID, "error", cause)
	o.notifier.StateChanged(instanceID, protocol.StateError, map[string]any{"error": cause.Error()})
	o.logEvent(context.Background(), "error", instanceID, fmt.Sprintf("start failed: %v", cause))
	return fmt.Errorf("starting %s: %w", instanceID, cause)
}

// Stop tears one instance down. It is idempotent: stopping a
// never-started or already-stopped instance succeeds as a no-op.
// The monitoring loop is cancelled and awaited (bounded by
// MonitorStopWait) before the service's Stop runs, so no orphaned loop
// keeps writing into a stopped instance's state.
func (o *Orchestrator) Stop(ctx context.Context, instanceID string) error {
	o.mu.Lock()
	rec, ok := o.instances[instanceID]
	if !ok || rec.state == protocol.StateStopped {
		o.mu.Unlock()
		return nil
	}
	wasRunning := rec.state == protocol.StateRunning
	rec.state = protocol.StateStopping
	cancel := rec.cancel
	done := rec.done
	svc := rec.svc
	o.mu.Unlock()

	if wasRunning {
		o.notifier.StateChanged(instanceID, protocol.StateStopping, nil)
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(o.cfg.MonitorStopWait):
			o.log.Warn("monitoring loop did not stop in time", "instance", instanceID)
		}
	}

	var stopErr error
	if svc != nil {
		stopCtx, cancelStop := context.WithTimeout(ctx, o.cfg.StopTimeout)
		stopErr = svc.Stop(stopCtx, instanceID)
		cancelStop()
	}

	o.mu.Lock()
	delete(o.instances, instanceID)
	o.mu.Unlock()

	o.notifier.StateChanged(instanceID, protocol.StateStopped, nil)
	o.logEvent(ctx, "info", instanceID, "instance stopped")

	if stopErr != nil {
		o.log.Error("service stop reported error", "instance", instanceID, "error", stopErr)
		return fmt.Errorf("stopping %s: %w", instanceID, stopErr)
	}
	o.log.Info("instance stopped", "instance", instanceID)
	return nil
}

// Restart stops and restarts an instance with its last known
// configuration, pausing RestartPause in between so the transport can
// release its resources. It tolerates the instance already being
// stopped.
func (o *Orchestrator) Restart(ctx context.Context, instanceID string) error {
	o.mu.RLock()
	prev, ok := o.known[instanceID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrInstanceNotFound, instanceID)
	}

	if err := o.Stop(ctx, instanceID); err != nil {
		// The record is gone either way; log and carry on to start.
		o.log.Warn("restart: stop phase reported error", "instance", instanceID, "error", err)
	}

	select {
	case <-time.After(o.cfg.RestartPause):
	case <-ctx.Done():
		return ctx.Err()
	}

	return o.Start(ctx, instanceID, prev.protocolType, prev.config)
}

// StartAll starts every auto-start seed, isolating failures: one bad
// instance is recorded and skipped, never aborting the rest. Returns
// the number of successful starts.
func (o *Orchestrator) StartAll(ctx context.Context, seeds []Seed) int {
	started := 0
	for _, seed := range seeds {
		if !seed.AutoStart {
			continue
		}
		if err := o.Start(ctx, seed.ID, seed.Type, seed.Config); err != nil {
			o.log.Error("startAll: instance failed", "instance", seed.ID, "error", err)
			continue
		}
		started++
	}
	o.log.Info("bulk start finished", "started", started, "configured", len(seeds))
	return started
}

// StopAll stops every tracked instance, isolating failures. Returns the
// number of successful stops.
func (o *Orchestrator) StopAll(ctx context.Context) int {
	o.mu.RLock()
	ids := make([]string, 0, len(o.instances))
	for instanceID := range o.instances {
		ids = append(ids, instanceID)
	}
	o.mu.RUnlock()

	stopped := 0
	for _, instanceID := range ids {
		if err := o.Stop(ctx, instanceID); err != nil {
			o.log.Error("stopAll: instance failed", "instance", instanceID, "error", err)
			continue
		}
		stopped++
	}
	o.log.Info("bulk stop finished", "stopped", stopped)
	return stopped
}

// Status returns a snapshot for one instance. Unknown instances report
// the stopped state. Never blocks on the instance's I/O.
func (o *Orchestrator) Status(instanceID string) StatusSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	rec, ok := o.instances[instanceID]
	if !ok {
		return StatusSnapshot{ID: instanceID, State: protocol.StateStopped}
	}
	return rec.snapshot(time.Now())
}

// StatusAll returns snapshots for every tracked instance.
func (o *Orchestrator) StatusAll() map[string]StatusSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	now := time.Now()
	out := make(map[string]StatusSnapshot, len(o.instances))
	for instanceID, rec := range o.instances {
		out[instanceID] = rec.snapshot(now)
	}
	return out
}

// TestConnection probes an address with a throwaway service lookup,
// bounded by TestTimeout. A timeout or unknown protocol type reports
// failure, never an error value.
func (o *Orchestrator) TestConnection(ctx context.Context, protocolType protocol.Protocol, address string, cfg protocol.Config) bool {
	svc, err := o.registry.Lookup(protocolType)
	if err != nil {
		o.log.Error("test connection rejected", "type", protocolType, "error", err)
		return false
	}

	testCtx, cancel := context.WithTimeout(ctx, o.cfg.TestTimeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		result <- svc.TestConnection(testCtx, address, cfg)
	}()

	select {
	case ok := <-result:
		o.log.Info("connection test finished", "type", protocolType, "address", address, "ok", ok)
		return ok
	case <-testCtx.Done():
		o.log.Error("connection test timed out", "type", protocolType, "address", address)
		return false
	}
}

// InstanceCount returns the number of tracked instances.
func (o *Orchestrator) InstanceCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.instances)
}

// logEvent persists a lifecycle log entry and fans it out.
func (o *Orchestrator) logEvent(ctx context.Context, level, instanceID, message string) {
	rec := storage.LogRecord{
		Level:     level,
		Source:    "orchestrator." + instanceID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if o.sink != nil {
		if err := o.sink.InsertLog(ctx, rec); err != nil {
			o.log.Error("persisting log entry", "error", err)
		}
	}
	o.notifier.LogLine(level, rec.Source, message, nil)
}
