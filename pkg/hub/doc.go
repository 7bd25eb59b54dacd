// Package hub implements the broadcast hub: many-producer/many-consumer
// fan-out of events to live subscribers grouped by named channel, with
// heartbeat-driven liveness detection and automatic eviction of dead
// subscribers.
//
// The hub is the sole writer of the subscriber registry. Subscribers are
// added through Connect, removed through Disconnect, and evicted
// automatically on send failure, heartbeat staleness, or a closed
// handle. No other component mutates membership.
//
// Delivery is best-effort and at-most-once: a send failure to one
// subscriber never blocks or fails delivery to another, and triggers
// immediate eviction rather than retry. Per-subscriber send order
// matches broadcast call order; no ordering is guaranteed across
// subscribers.
package hub
