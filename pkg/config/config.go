// Package config defines the gateway configuration file format and its
// loader.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldgate/fieldgate/pkg/alerting"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrEmptyFile    = errors.New("configuration file is empty")
)

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	// Host is the bind address. Defaults to all interfaces.
	Host string `yaml:"host,omitempty"`
	// Port is the API listen port. Defaults to 8000.
	Port int `yaml:"port,omitempty"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// Enabled turns on bearer-token checks for mutating endpoints.
	Enabled bool `yaml:"enabled"`
	// JWTSecret signs and verifies API tokens. Required when enabled.
	JWTSecret string `yaml:"jwtSecret,omitempty"`
}

// HubConfig holds broadcast hub tuning.
type HubConfig struct {
	// HeartbeatSeconds is the heartbeat broadcast cadence. Defaults to 30.
	HeartbeatSeconds int `yaml:"heartbeatSeconds,omitempty"`
	// CleanupSeconds is the stale-subscriber scan cadence. Defaults to 120.
	CleanupSeconds int `yaml:"cleanupSeconds,omitempty"`
	// StaleSeconds is the heartbeat age that marks a subscriber stale.
	// Defaults to 300.
	StaleSeconds int `yaml:"staleSeconds,omitempty"`
}

// MonitoringConfig holds monitoring loop tuning.
type MonitoringConfig struct {
	// SampleIntervalMS is the per-instance sampling cadence in
	// milliseconds. Defaults to 1000.
	SampleIntervalMS int `yaml:"sampleIntervalMs,omitempty"`
	// RetentionRecords caps the in-memory sample and log buffers.
	RetentionRecords int `yaml:"retentionRecords,omitempty"`
}

// BrokerConfig holds the optional embedded MQTT broker settings.
type BrokerConfig struct {
	// Enabled starts the embedded broker with the gateway.
	Enabled bool `yaml:"enabled"`
	// Port is the broker listen port. Defaults to 1883.
	Port int `yaml:"port,omitempty"`
	// Username and Password, when both set, are required from clients.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// ConnectionConfig declares one protocol connection instance.
type ConnectionConfig struct {
	// ID identifies the instance across the API and broadcasts.
	ID string `yaml:"id"`
	// Type is the protocol family tag.
	Type string `yaml:"type"`
	// AutoStart starts the instance with the gateway.
	AutoStart bool `yaml:"autoStart"`
	// Config is the protocol-specific configuration blob.
	Config map[string]any `yaml:"config,omitempty"`
}

// AlertRuleConfig declares one threshold alert rule.
type AlertRuleConfig struct {
	Name       string  `yaml:"name"`
	Expression string  `yaml:"expression"`
	Severity   string  `yaml:"severity,omitempty"`
	Threshold  float64 `yaml:"threshold,omitempty"`
	// CooldownSeconds suppresses repeats per rule and instance.
	CooldownSeconds int `yaml:"cooldownSeconds,omitempty"`
}

// Config is the root gateway configuration.
type Config struct {
	Server      ServerConfig       `yaml:"server,omitempty"`
	Auth        AuthConfig         `yaml:"auth,omitempty"`
	Hub         HubConfig          `yaml:"hub,omitempty"`
	Monitoring  MonitoringConfig   `yaml:"monitoring,omitempty"`
	Broker      BrokerConfig       `yaml:"broker,omitempty"`
	Connections []ConnectionConfig `yaml:"connections,omitempty"`
	AlertRules  []AlertRuleConfig  `yaml:"alertRules,omitempty"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"logLevel,omitempty"`
	// LogFormat is "json" or "text". Defaults to text.
	LogFormat string `yaml:"logFormat,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8000
	}
	if c.Hub.HeartbeatSeconds <= 0 {
		c.Hub.HeartbeatSeconds = 30
	}
	if c.Hub.CleanupSeconds <= 0 {
		c.Hub.CleanupSeconds = 120
	}
	if c.Hub.StaleSeconds <= 0 {
		c.Hub.StaleSeconds = 300
	}
	if c.Monitoring.SampleIntervalMS <= 0 {
		c.Monitoring.SampleIntervalMS = 1000
	}
	if c.Broker.Port <= 0 {
		c.Broker.Port = 1883
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// LoadFromFile reads and validates a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required when auth is enabled")
	}

	seen := make(map[string]bool, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.ID == "" {
			return fmt.Errorf("connections[%d]: id is required", i)
		}
		if seen[conn.ID] {
			return fmt.Errorf("connections[%d]: duplicate id %q", i, conn.ID)
		}
		seen[conn.ID] = true
		if conn.Type == "" {
			return fmt.Errorf("connection %q: type is required", conn.ID)
		}
	}

	for i, rule := range c.AlertRules {
		if rule.Name == "" {
			return fmt.Errorf("alertRules[%d]: name is required", i)
		}
		if rule.Expression == "" {
			return fmt.Errorf("alert rule %q: expression is required", rule.Name)
		}
	}
	return nil
}

// SampleInterval returns the monitoring cadence as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Monitoring.SampleIntervalMS) * time.Millisecond
}

// HeartbeatInterval returns the hub heartbeat cadence as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Hub.HeartbeatSeconds) * time.Second
}

// CleanupInterval returns the hub cleanup cadence as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Hub.CleanupSeconds) * time.Second
}

// StaleAfter returns the hub staleness threshold as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Hub.StaleSeconds) * time.Second
}

// ProtocolConfig converts a connection's config blob to the protocol
// layer's type.
func (cc ConnectionConfig) ProtocolConfig() protocol.Config {
	if cc.Config == nil {
		return protocol.Config{}
	}
	return protocol.Config(cc.Config)
}

// Rules converts the configured alert rules to engine rules.
func (c *Config) Rules() []alerting.Rule {
	rules := make([]alerting.Rule, 0, len(c.AlertRules))
	for _, rc := range c.AlertRules {
		rules = append(rules, alerting.Rule{
			Name:       rc.Name,
			Expression: rc.Expression,
			Severity:   alerting.Severity(rc.Severity),
			Threshold:  rc.Threshold,
			Cooldown:   time.Duration(rc.CooldownSeconds) * time.Second,
		})
	}
	return rules
}
