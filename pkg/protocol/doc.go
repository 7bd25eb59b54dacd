// Package protocol defines the capability contract every field-device
// protocol implementation must satisfy, plus the shared vocabulary used
// by the orchestrator: protocol type tags, connection lifecycle states,
// point specifications, and metric samples.
//
// A Service owns its own connection handles and network I/O. The
// orchestrator never reaches into a service's internals; it drives the
// lifecycle through Start/Stop and observes health through the service's
// Sampler and ActiveConnections.
//
// Services are selected through a Registry keyed by protocol type tag.
// Concrete implementations (Modbus/TCP, MQTT, ...) register a factory at
// process start; lookups construct the service lazily on first use.
package protocol
