// Package id provides unique identifier generation for fieldgate.
//
// It is the canonical source for IDs across the codebase: UUIDs for
// records that leave the process (alerts, subscriptions) and short hex
// IDs for user-facing contexts where brevity matters.
package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// UUID generates a UUID v4 string.
func UUID() string {
	return uuid.NewString()
}

// Short generates a short random hex ID (16 characters).
// Suitable for user-facing IDs where brevity matters.
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Subscription generates an ID for a hub subscription.
func Subscription() string {
	return "sub_" + Short()
}
