package orchestrator

import (
	"context"
	"time"

	"github.com/fieldgate/fieldgate/internal/storage"
)

// runMonitor is the per-instance monitoring loop. Each tick it samples
// the service's metrics, persists the sample, and fans it out through
// the notifier. Sampling and persistence failures are logged and
// counted, never fatal: a stuck device must not kill its loop. The loop
// exits only when its context is cancelled, closing done on the way
// out.
func (o *Orchestrator) runMonitor(ctx context.Context, rec *record, done chan struct{}) {
	defer close(done)

	sampler := rec.svc.Sampler()
	ticker := time.NewTicker(o.cfg.SampleInterval)
	defer ticker.Stop()

	o.log.Debug("monitoring loop started", "instance", rec.id)
	for {
		select {
		case <-ctx.Done():
			o.log.Debug("monitoring loop stopped", "instance", rec.id)
			return
		case <-ticker.C:
		}

		metrics, err := sampler.Sample(ctx, rec.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.mu.Lock()
			rec.sampleErrors++
			o.mu.Unlock()
			o.log.Error("sampling failed", "instance", rec.id, "error", err)
			continue
		}

		now := time.Now()
		o.mu.Lock()
		rec.samples++
		rec.lastActivity = now
		o.mu.Unlock()

		if o.sink != nil {
			sample := storage.SampleRecord{
				ProtocolID:   rec.id,
				ConnectionID: rec.id,
				Metrics:      metrics,
				Timestamp:    now.UTC(),
			}
			if err := o.sink.InsertSample(ctx, sample); err != nil {
				o.mu.Lock()
				rec.sampleErrors++
				o.mu.Unlock()
				o.log.Error("persisting sample failed", "instance", rec.id, "error", err)
			}
		}

		o.notifier.SampleProduced(rec.id, rec.id, metrics)

		if o.alerts != nil {
			for _, alert := range o.alerts.Evaluate(rec.id, metrics) {
				o.log.Warn("alert raised",
					"instance", rec.id,
					"rule", alert.Title,
					"severity", alert.Severity)
				o.notifier.AlertRaised(alert)
			}
		}
	}
}
