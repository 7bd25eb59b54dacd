package protocol

import (
	"fmt"
	"strconv"
)

// Protocol identifies a protocol family.
type Protocol string

// Protocol type tags for all supported field-device protocols.
const (
	ProtocolModbusTCP  Protocol = "modbus-tcp"
	ProtocolOPCUA      Protocol = "opc-ua"
	ProtocolMQTT       Protocol = "mqtt"
	ProtocolProfinet   Protocol = "profinet"
	ProtocolEthernetIP Protocol = "ethernet-ip"
	ProtocolCANopen    Protocol = "canopen"
	ProtocolBACnet     Protocol = "bacnet"
)

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	return string(p)
}

// ConnectionState is the lifecycle state of a connection instance.
type ConnectionState string

// Lifecycle states. Transitions are owned by the orchestrator:
//
//	Stopped --start--> Starting --success--> Running
//	Starting --failure--> Error
//	Running --stop--> Stopping --> Stopped
//	Running --failure--> Error
//	Error --start--> Starting
const (
	StateStopped  ConnectionState = "stopped"
	StateStarting ConnectionState = "starting"
	StateRunning  ConnectionState = "running"
	StateError    ConnectionState = "error"
	StateStopping ConnectionState = "stopping"
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	return string(s)
}

// Valid reports whether s is one of the five enumerated states.
func (s ConnectionState) Valid() bool {
	switch s {
	case StateStopped, StateStarting, StateRunning, StateError, StateStopping:
		return true
	}
	return false
}

// Config is an opaque key/value configuration blob for one instance.
// Interpretation is protocol-specific.
type Config map[string]any

// GetString returns the string value for key, or def if absent.
func (c Config) GetString(key, def string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return def
}

// GetInt returns the integer value for key, or def if absent or
// not convertible.
func (c Config) GetInt(key string, def int) int {
	v, ok := c[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// GetBool returns the boolean value for key, or def if absent.
func (c Config) GetBool(key string, def bool) bool {
	if v, ok := c[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Clone returns a shallow copy of the config.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// PointSpec addresses a single readable or writable data point on a
// device. Address interpretation is protocol-specific: a Modbus register
// ("40001"), an MQTT topic, an OPC UA node id, and so on.
type PointSpec struct {
	// Address locates the point within the instance's device.
	Address string `json:"address"`

	// DataType is the expected value type (boolean, integer, float,
	// string, binary).
	DataType string `json:"dataType"`

	// Params holds protocol-specific addressing extras (unit id,
	// QoS, namespace index, ...).
	Params map[string]any `json:"params,omitempty"`
}
