package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldgate/fieldgate/internal/storage"
	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/api"
	"github.com/fieldgate/fieldgate/pkg/bridge"
	"github.com/fieldgate/fieldgate/pkg/broker"
	"github.com/fieldgate/fieldgate/pkg/config"
	"github.com/fieldgate/fieldgate/pkg/event"
	"github.com/fieldgate/fieldgate/pkg/hub"
	"github.com/fieldgate/fieldgate/pkg/logging"
	"github.com/fieldgate/fieldgate/pkg/modbus"
	"github.com/fieldgate/fieldgate/pkg/mqttconn"
	"github.com/fieldgate/fieldgate/pkg/orchestrator"
	"github.com/fieldgate/fieldgate/pkg/protocol"
	"github.com/fieldgate/fieldgate/pkg/simulator"
)

// shutdownTimeout bounds the graceful stop of the API server and all
// running instances.
const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

// loadConfig reads the configured file, or returns defaults when no
// file was given.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(configPath)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional embedded broker first, so local MQTT instances can dial it.
	var embedded *broker.Broker
	if cfg.Broker.Enabled {
		b, err := broker.New(broker.Config{
			Port:     cfg.Broker.Port,
			Username: cfg.Broker.Username,
			Password: cfg.Broker.Password,
			Logger:   log.With("component", "broker"),
		})
		if err != nil {
			return fmt.Errorf("creating embedded broker: %w", err)
		}
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("starting embedded broker: %w", err)
		}
		embedded = b
	}

	sink := storage.NewMemorySink(cfg.Monitoring.RetentionRecords)

	alertStore := alerting.NewStore(0)
	alertEngine := alerting.NewEngine(alertStore)
	for _, rule := range cfg.Rules() {
		if err := alertEngine.AddRule(rule); err != nil {
			return fmt.Errorf("loading alert rules: %w", err)
		}
	}

	h := hub.New(hub.Config{
		HeartbeatInterval: cfg.HeartbeatInterval(),
		CleanupInterval:   cfg.CleanupInterval(),
		StaleAfter:        cfg.StaleAfter(),
		Logger:            log.With("component", "hub"),
	})
	h.SetSnapshot(event.ChannelAlerts, func() []event.Event {
		recent := alertStore.RecentUnacknowledged(20)
		events := make([]event.Event, 0, len(recent))
		for _, alert := range recent {
			events = append(events, event.NewAlert(alert))
		}
		return events
	})
	h.Start(ctx)

	registry := protocol.NewRegistry()
	if err := registry.Register(protocol.ProtocolModbusTCP, func() (protocol.Service, error) {
		return modbus.NewService(log.With("component", "modbus")), nil
	}); err != nil {
		return err
	}
	if err := registry.Register(protocol.ProtocolMQTT, func() (protocol.Service, error) {
		return mqttconn.NewService(log.With("component", "mqtt")), nil
	}); err != nil {
		return err
	}
	if err := simulator.RegisterAll(registry); err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{
		SampleInterval: cfg.SampleInterval(),
		Logger:         log.With("component", "orchestrator"),
	}, registry, sink, bridge.New(h, log.With("component", "bridge")), alertEngine)

	server := api.NewServer(api.Config{
		Addr:        cfg.Server.Addr(),
		AuthEnabled: cfg.Auth.Enabled,
		JWTSecret:   cfg.Auth.JWTSecret,
		Logger:      log.With("component", "api"),
	}, orch, h, alertStore, sink)
	if err := server.Start(); err != nil {
		return err
	}

	seeds := make([]orchestrator.Seed, 0, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		seeds = append(seeds, orchestrator.Seed{
			ID:        conn.ID,
			Type:      protocol.Protocol(conn.Type),
			Config:    conn.ProtocolConfig(),
			AutoStart: conn.AutoStart,
		})
	}
	orch.StartAll(ctx, seeds)

	log.Info("gateway running", "addr", cfg.Server.Addr(), "connections", len(cfg.Connections))
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	orch.StopAll(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("api shutdown", "error", err)
	}
	if embedded != nil {
		if err := embedded.Stop(shutdownCtx); err != nil {
			log.Error("broker shutdown", "error", err)
		}
	}
	h.Wait()
	return nil
}
