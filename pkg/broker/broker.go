// Package broker embeds a local MQTT broker so gateways in isolated
// networks can run the MQTT connector and simulated devices without an
// external broker.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/fieldgate/fieldgate/pkg/logging"
)

// DefaultPort is the standard MQTT port.
const DefaultPort = 1883

// Config holds embedded broker settings.
type Config struct {
	// Port is the TCP listen port. Defaults to 1883.
	Port int

	// Username and Password, when both set, are required from every
	// client. Empty means all clients are accepted.
	Username string
	Password string

	// Logger receives broker logs. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Broker wraps an in-process MQTT server.
type Broker struct {
	cfg    Config
	log    *slog.Logger
	server *mochi.Server

	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// New creates an embedded broker.
func New(cfg Config) (*Broker, error) {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	server := mochi.New(&mochi.Options{InlineClient: true})

	if cfg.Username != "" && cfg.Password != "" {
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{
				{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true},
			},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, fmt.Errorf("adding auth hook: %w", err)
		}
	} else {
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, fmt.Errorf("adding allow hook: %w", err)
		}
	}

	return &Broker{cfg: cfg, log: cfg.Logger, server: server}, nil
}

// Start begins serving MQTT clients. It returns once the listener is
// registered; serving happens in the background.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.New("broker is already running")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	listener := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("mqtt-%d", b.cfg.Port),
		Address: fmt.Sprintf(":%d", b.cfg.Port),
	})
	if err := b.server.AddListener(listener); err != nil {
		return fmt.Errorf("adding listener: %w", err)
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			b.log.Error("mqtt broker error", "error", err)
		}
	}()

	b.running = true
	b.startedAt = time.Now()
	b.log.Info("embedded mqtt broker started", "port", b.cfg.Port)
	return nil
}

// Stop shuts the broker down. Stopping a stopped broker is a no-op.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- b.server.Close() }()

	select {
	case err := <-done:
		b.log.Info("embedded mqtt broker stopped")
		return err
	case <-ctx.Done():
		return fmt.Errorf("broker shutdown: %w", ctx.Err())
	}
}

// IsRunning reports whether the broker is serving.
func (b *Broker) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Uptime returns how long the broker has been serving, zero when
// stopped.
func (b *Broker) Uptime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return 0
	}
	return time.Since(b.startedAt)
}

// Publish injects a message through the broker's inline client, used by
// simulated devices.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}
