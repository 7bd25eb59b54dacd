// Package orchestrator tracks every started protocol connection
// instance, drives its lifecycle state machine, and runs one background
// monitoring loop per running instance.
//
// The orchestrator is the sole owner of the instance registry and of
// lifecycle state transitions. Traffic counters belong to the protocol
// services; the orchestrator only snapshots them. All cross-component
// coordination leaves through the Notifier, one-way, so no component
// ever calls back into the orchestrator while it holds its lock.
//
// Failures are isolated per instance: a failed start degrades that one
// record to the error state, bulk operations skip over failed items,
// and a panic or error inside one monitoring loop never touches another
// instance's loop.
package orchestrator
