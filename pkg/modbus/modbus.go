// Package modbus implements the Modbus/TCP protocol service: the MBAP
// frame codec and a connection manager that keeps one TCP session per
// configured device instance.
package modbus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fieldgate/fieldgate/pkg/logging"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

// defaultPort is the IANA-registered Modbus/TCP port.
const defaultPort = 502

// defaultIOTimeout bounds one request/response exchange when the
// caller's context carries no deadline.
const defaultIOTimeout = 5 * time.Second

// conn is one device session. Requests are serialized per session;
// Modbus/TCP devices commonly mishandle pipelined transactions.
type conn struct {
	mu     sync.Mutex
	nc     net.Conn
	txn    uint16
	unitID uint8

	statsMu     sync.Mutex
	bytes       uint64
	messages    uint64
	errors      uint64
	latencySum  time.Duration
	sampledAt   time.Time
	lastBytes   uint64
	lastMsgs    uint64
	lastErrs    uint64
	lastLatency time.Duration
}

// Service implements protocol.Service for Modbus/TCP.
type Service struct {
	log *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

// NewService creates a Modbus/TCP service. A nil logger defaults to a
// no-op logger.
func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{log: log, conns: make(map[string]*conn)}
}

// Type implements protocol.Service.
func (s *Service) Type() protocol.Protocol { return protocol.ProtocolModbusTCP }

// endpoint resolves the dial address from the instance configuration.
// Either "address" ("host:port") or "host" plus optional "port".
func endpoint(cfg protocol.Config) (string, error) {
	if addr := cfg.GetString("address", ""); addr != "" {
		if !strings.Contains(addr, ":") {
			addr = net.JoinHostPort(addr, strconv.Itoa(defaultPort))
		}
		return addr, nil
	}
	host := cfg.GetString("host", "")
	if host == "" {
		return "", fmt.Errorf("%w: host or address required", protocol.ErrInvalidConfig)
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.GetInt("port", defaultPort))), nil
}

// Start implements protocol.Service: dials the device and keeps the
// session for the instance's lifetime.
func (s *Service) Start(ctx context.Context, instanceID string, cfg protocol.Config) error {
	addr, err := endpoint(cfg)
	if err != nil {
		return err
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", protocol.ErrUnreachable, addr, err)
	}

	c := &conn{
		nc:        nc,
		unitID:    uint8(cfg.GetInt("unit_id", 1)),
		sampledAt: time.Now(),
	}

	s.mu.Lock()
	if _, exists := s.conns[instanceID]; exists {
		s.mu.Unlock()
		nc.Close()
		return fmt.Errorf("%w: %s", protocol.ErrInstanceExists, instanceID)
	}
	s.conns[instanceID] = c
	s.mu.Unlock()

	s.log.Info("modbus session established", "instance", instanceID, "address", addr, "unit", c.unitID)
	return nil
}

// Stop implements protocol.Service.
func (s *Service) Stop(_ context.Context, instanceID string) error {
	s.mu.Lock()
	c, ok := s.conns[instanceID]
	delete(s.conns, instanceID)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrInstanceNotFound, instanceID)
	}
	err := c.nc.Close()
	s.log.Info("modbus session closed", "instance", instanceID)
	return err
}

// TestConnection implements protocol.Service: a bounded TCP dial probe.
func (s *Service) TestConnection(ctx context.Context, address string, cfg protocol.Config) bool {
	if address == "" {
		var err error
		if address, err = endpoint(cfg); err != nil {
			return false
		}
	} else if !strings.Contains(address, ":") {
		address = net.JoinHostPort(address, strconv.Itoa(defaultPort))
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		s.log.Debug("modbus probe failed", "address", address, "error", err)
		return false
	}
	nc.Close()
	return true
}

// lookup fetches the session for an instance.
func (s *Service) lookup(instanceID string) (*conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrNotConnected, instanceID)
	}
	return c, nil
}

// parseAddress converts a point address to a zero-based register or
// coil offset. Both plain offsets ("19") and conventional data-table
// references ("40020" for holding register 19) are accepted.
func parseAddress(spec protocol.PointSpec) (uint16, bool, error) {
	n, err := strconv.Atoi(spec.Address)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: address %q", protocol.ErrUnsupportedPoint, spec.Address)
	}

	coil := strings.EqualFold(spec.DataType, "boolean")
	switch {
	case n >= 40001 && n <= 49999:
		n -= 40001
	case n >= 1 && n <= 9999 && coil:
		n--
	}
	if n > 0xFFFF {
		return 0, false, fmt.Errorf("%w: address %q", protocol.ErrUnsupportedPoint, spec.Address)
	}
	return uint16(n), coil, nil
}

// Read implements protocol.Service. Boolean points read one coil;
// everything else reads one holding register.
func (s *Service) Read(ctx context.Context, instanceID string, point protocol.PointSpec) (any, error) {
	c, err := s.lookup(instanceID)
	if err != nil {
		return nil, err
	}
	offset, coil, err := parseAddress(point)
	if err != nil {
		return nil, err
	}

	if coil {
		pdu, err := ReadCoilsPDU(offset, 1)
		if err != nil {
			return nil, err
		}
		resp, err := c.roundTrip(ctx, pdu)
		if err != nil {
			return nil, err
		}
		coils, err := ParseReadCoilsResponse(resp, 1)
		if err != nil {
			return nil, err
		}
		return coils[0], nil
	}

	pdu, err := ReadHoldingRegistersPDU(offset, 1)
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, pdu)
	if err != nil {
		return nil, err
	}
	values, err := ParseReadRegistersResponse(resp)
	if err != nil {
		return nil, err
	}
	return int(values[0]), nil
}

// Write implements protocol.Service.
func (s *Service) Write(ctx context.Context, instanceID string, point protocol.PointSpec, value any) error {
	c, err := s.lookup(instanceID)
	if err != nil {
		return err
	}
	offset, coil, err := parseAddress(point)
	if err != nil {
		return err
	}

	var pdu []byte
	if coil {
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: coil value must be boolean", protocol.ErrUnsupportedPoint)
		}
		pdu = WriteSingleCoilPDU(offset, on)
	} else {
		n, ok := registerValue(value)
		if !ok {
			return fmt.Errorf("%w: register value must be an integer 0..65535", protocol.ErrUnsupportedPoint)
		}
		pdu = WriteSingleRegisterPDU(offset, n)
	}

	_, err = c.roundTrip(ctx, pdu)
	return err
}

func registerValue(v any) (uint16, bool) {
	switch n := v.(type) {
	case int:
		if n >= 0 && n <= 0xFFFF {
			return uint16(n), true
		}
	case int64:
		if n >= 0 && n <= 0xFFFF {
			return uint16(n), true
		}
	case float64:
		if n >= 0 && n <= 0xFFFF && n == float64(int(n)) {
			return uint16(n), true
		}
	case uint16:
		return n, true
	}
	return 0, false
}

// ActiveConnections implements protocol.Service.
func (s *Service) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Sampler implements protocol.Service. Rates are derived from counter
// deltas since the previous sample.
func (s *Service) Sampler() protocol.Sampler {
	return protocol.SamplerFunc(func(_ context.Context, instanceID string) (protocol.Metrics, error) {
		c, err := s.lookup(instanceID)
		if err != nil {
			return protocol.Metrics{}, err
		}
		return c.sample(), nil
	})
}

// roundTrip performs one serialized request/response exchange and
// updates the session's traffic counters.
func (c *conn) roundTrip(ctx context.Context, pdu []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.txn++
	req := Frame{TransactionID: c.txn, UnitID: c.unitID, PDU: pdu}
	wire, err := req.Encode()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(defaultIOTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.nc.SetDeadline(deadline); err != nil {
		return nil, err
	}

	start := time.Now()
	if _, err := c.nc.Write(wire); err != nil {
		c.countError()
		return nil, fmt.Errorf("modbus write: %w", err)
	}

	header := make([]byte, mbapHeaderLen)
	if _, err := io.ReadFull(c.nc, header); err != nil {
		c.countError()
		return nil, fmt.Errorf("modbus read header: %w", err)
	}
	resp, pduLen, err := DecodeHeader(header)
	if err != nil {
		c.countError()
		return nil, err
	}
	body := make([]byte, pduLen)
	if _, err := io.ReadFull(c.nc, body); err != nil {
		c.countError()
		return nil, fmt.Errorf("modbus read body: %w", err)
	}
	resp.PDU = body

	if resp.TransactionID != req.TransactionID {
		c.countError()
		return nil, fmt.Errorf("modbus: transaction id mismatch: sent %d, got %d", req.TransactionID, resp.TransactionID)
	}
	if err := resp.ExceptionError(); err != nil {
		c.countError()
		return nil, err
	}

	c.countExchange(len(wire)+mbapHeaderLen+pduLen, time.Since(start))
	return resp.PDU, nil
}

func (c *conn) countExchange(bytes int, latency time.Duration) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.bytes += uint64(bytes)
	c.messages++
	c.latencySum += latency
}

func (c *conn) countError() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.errors++
}

// sample computes rates from the counter deltas since the last call.
func (c *conn) sample() protocol.Metrics {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.sampledAt).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	dBytes := c.bytes - c.lastBytes
	dMsgs := c.messages - c.lastMsgs
	dErrs := c.errors - c.lastErrs

	m := protocol.Metrics{
		BytesPerSecond:    float64(dBytes) / elapsed,
		MessagesPerSecond: float64(dMsgs) / elapsed,
		ConnectionCount:   1,
	}
	if total := dMsgs + dErrs; total > 0 {
		m.ErrorRate = float64(dErrs) / float64(total)
	}
	if dMsgs > 0 {
		dLatency := c.latencySum - c.lastLatency
		m.LatencyMS = float64(dLatency.Microseconds()) / 1000 / float64(dMsgs)
	}

	c.sampledAt = now
	c.lastBytes = c.bytes
	c.lastMsgs = c.messages
	c.lastErrs = c.errors
	c.lastLatency = c.latencySum
	return m
}
