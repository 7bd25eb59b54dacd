// Package mqttconn implements the MQTT protocol service on the Eclipse
// Paho client. Each instance is one broker session that subscribes to
// its configured topics and caches the latest payload per topic for
// point reads.
package mqttconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fieldgate/fieldgate/internal/id"
	"github.com/fieldgate/fieldgate/pkg/logging"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

const (
	defaultPort           = 1883
	defaultKeepAlive      = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMS   = 250
)

// session is one live broker connection.
type session struct {
	client pahomqtt.Client
	topics []string

	mu        sync.Mutex
	latest    map[string][]byte
	bytes     uint64
	messages  uint64
	errors    uint64
	sampledAt time.Time
	lastBytes uint64
	lastMsgs  uint64
	lastErrs  uint64
}

// Service implements protocol.Service for MQTT.
type Service struct {
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService creates an MQTT service. A nil logger defaults to a no-op
// logger.
func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{log: log, sessions: make(map[string]*session)}
}

// Type implements protocol.Service.
func (s *Service) Type() protocol.Protocol { return protocol.ProtocolMQTT }

// brokerURL resolves the broker address from the configuration. Either
// "broker_url" verbatim or "host" plus optional "port".
func brokerURL(cfg protocol.Config) (string, error) {
	if u := cfg.GetString("broker_url", ""); u != "" {
		return u, nil
	}
	host := cfg.GetString("host", "")
	if host == "" {
		return "", fmt.Errorf("%w: host or broker_url required", protocol.ErrInvalidConfig)
	}
	return fmt.Sprintf("tcp://%s:%d", host, cfg.GetInt("port", defaultPort)), nil
}

// clientOptions builds paho options from the instance configuration.
func clientOptions(cfg protocol.Config, clientID string) (*pahomqtt.ClientOptions, error) {
	url, err := brokerURL(cfg)
	if err != nil {
		return nil, err
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(url)
	opts.SetClientID(cfg.GetString("client_id", clientID))
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(time.Duration(cfg.GetInt("keep_alive_seconds", int(defaultKeepAlive.Seconds()))) * time.Second)
	opts.SetCleanSession(cfg.GetBool("clean_session", true))
	if user := cfg.GetString("username", ""); user != "" {
		opts.SetUsername(user)
		opts.SetPassword(cfg.GetString("password", ""))
	}
	return opts, nil
}

// configuredTopics extracts the subscription topic list.
func configuredTopics(cfg protocol.Config) []string {
	raw, ok := cfg["topics"]
	if !ok {
		return nil
	}
	switch list := raw.(type) {
	case []string:
		return list
	case []any:
		topics := make([]string, 0, len(list))
		for _, v := range list {
			if topic, ok := v.(string); ok {
				topics = append(topics, topic)
			}
		}
		return topics
	}
	return nil
}

// Start implements protocol.Service: connects to the broker and
// subscribes to the configured topics.
func (s *Service) Start(ctx context.Context, instanceID string, cfg protocol.Config) error {
	opts, err := clientOptions(cfg, "fieldgate-"+instanceID+"-"+id.Short())
	if err != nil {
		return err
	}

	sess := &session{
		topics:    configuredTopics(cfg),
		latest:    make(map[string][]byte),
		sampledAt: time.Now(),
	}
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		sess.record(msg.Topic(), msg.Payload())
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		sess.countError()
		s.log.Warn("mqtt connection lost", "instance", instanceID, "error", err)
	})

	client := pahomqtt.NewClient(opts)
	sess.client = client

	if err := waitToken(ctx, client.Connect()); err != nil {
		return fmt.Errorf("%w: connecting: %v", protocol.ErrUnreachable, err)
	}

	qos := byte(cfg.GetInt("qos", 0))
	for _, topic := range sess.topics {
		token := client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			sess.record(msg.Topic(), msg.Payload())
		})
		if err := waitToken(ctx, token); err != nil {
			client.Disconnect(disconnectQuiesceMS)
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	s.mu.Lock()
	if _, exists := s.sessions[instanceID]; exists {
		s.mu.Unlock()
		client.Disconnect(disconnectQuiesceMS)
		return fmt.Errorf("%w: %s", protocol.ErrInstanceExists, instanceID)
	}
	s.sessions[instanceID] = sess
	s.mu.Unlock()

	s.log.Info("mqtt session established", "instance", instanceID, "topics", len(sess.topics))
	return nil
}

// Stop implements protocol.Service.
func (s *Service) Stop(_ context.Context, instanceID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[instanceID]
	delete(s.sessions, instanceID)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrInstanceNotFound, instanceID)
	}
	sess.client.Disconnect(disconnectQuiesceMS)
	s.log.Info("mqtt session closed", "instance", instanceID)
	return nil
}

// TestConnection implements protocol.Service: a bounded connect probe
// with a throwaway client.
func (s *Service) TestConnection(ctx context.Context, address string, cfg protocol.Config) bool {
	probe := cfg.Clone()
	if probe == nil {
		probe = protocol.Config{}
	}
	if address != "" {
		probe["host"] = address
		delete(probe, "broker_url")
	}

	opts, err := clientOptions(probe, "fieldgate-probe-"+id.Short())
	if err != nil {
		return false
	}
	opts.SetAutoReconnect(false)

	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		s.log.Debug("mqtt probe failed", "address", address, "error", err)
		return false
	}
	client.Disconnect(disconnectQuiesceMS)
	return true
}

// Read implements protocol.Service: returns the latest payload cached
// for the point's topic.
func (s *Service) Read(_ context.Context, instanceID string, point protocol.PointSpec) (any, error) {
	sess, err := s.lookup(instanceID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	payload, ok := sess.latest[point.Address]
	if !ok {
		return nil, fmt.Errorf("%w: no message received on %s yet", protocol.ErrUnsupportedPoint, point.Address)
	}
	return string(payload), nil
}

// Write implements protocol.Service: publishes the value to the point's
// topic.
func (s *Service) Write(ctx context.Context, instanceID string, point protocol.PointSpec, value any) error {
	sess, err := s.lookup(instanceID)
	if err != nil {
		return err
	}

	qos := byte(0)
	retain := false
	if point.Params != nil {
		if q, ok := point.Params["qos"].(int); ok {
			qos = byte(q)
		}
		if r, ok := point.Params["retain"].(bool); ok {
			retain = r
		}
	}

	payload := fmt.Sprintf("%v", value)
	token := sess.client.Publish(point.Address, qos, retain, payload)
	if err := waitToken(ctx, token); err != nil {
		sess.countError()
		return fmt.Errorf("publishing to %s: %w", point.Address, err)
	}

	sess.mu.Lock()
	sess.bytes += uint64(len(payload))
	sess.messages++
	sess.mu.Unlock()
	return nil
}

// ActiveConnections implements protocol.Service.
func (s *Service) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sampler implements protocol.Service. Rates are derived from counter
// deltas since the previous sample.
func (s *Service) Sampler() protocol.Sampler {
	return protocol.SamplerFunc(func(_ context.Context, instanceID string) (protocol.Metrics, error) {
		sess, err := s.lookup(instanceID)
		if err != nil {
			return protocol.Metrics{}, err
		}
		return sess.sample(), nil
	})
}

func (s *Service) lookup(instanceID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrNotConnected, instanceID)
	}
	return sess, nil
}

// waitToken waits for a paho token bounded by the context.
func waitToken(ctx context.Context, token pahomqtt.Token) error {
	deadline, ok := ctx.Deadline()
	wait := defaultConnectTimeout
	if ok {
		wait = time.Until(deadline)
	}
	if !token.WaitTimeout(wait) {
		return protocol.ErrTimeout
	}
	return token.Error()
}

// record caches the latest payload for a topic and counts the traffic.
func (sess *session) record(topic string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.latest[topic] = cp
	sess.bytes += uint64(len(payload))
	sess.messages++
}

func (sess *session) countError() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.errors++
}

// sample computes rates from the counter deltas since the last call.
func (sess *session) sample() protocol.Metrics {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(sess.sampledAt).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	dBytes := sess.bytes - sess.lastBytes
	dMsgs := sess.messages - sess.lastMsgs
	dErrs := sess.errors - sess.lastErrs

	m := protocol.Metrics{
		BytesPerSecond:    float64(dBytes) / elapsed,
		MessagesPerSecond: float64(dMsgs) / elapsed,
		ConnectionCount:   1,
	}
	if total := dMsgs + dErrs; total > 0 {
		m.ErrorRate = float64(dErrs) / float64(total)
	}

	sess.sampledAt = now
	sess.lastBytes = sess.bytes
	sess.lastMsgs = sess.messages
	sess.lastErrs = sess.errors
	return m
}
