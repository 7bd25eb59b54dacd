package alerting

import (
	"sort"
	"sync"
	"time"
)

// Error is a simple error type for alerting errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors.
var (
	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = Error("alert not found")

	// ErrAlreadyAcknowledged is returned when acknowledging an alert
	// that left the active state.
	ErrAlreadyAcknowledged = Error("alert is not active")
)

// Store is a thread-safe in-memory alert store with bounded retention.
type Store struct {
	mu       sync.RWMutex
	alerts   map[string]*Alert
	order    []string // insertion order, oldest first
	capacity int
}

// NewStore creates a Store retaining up to capacity alerts. A capacity
// <= 0 defaults to 1024.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Store{
		alerts:   make(map[string]*Alert),
		capacity: capacity,
	}
}

// Insert adds an alert, evicting the oldest when full.
func (s *Store) Insert(a Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.alerts, oldest)
	}
	cp := a
	s.alerts[a.ID] = &cp
	s.order = append(s.order, a.ID)
}

// Get returns a copy of an alert by id.
func (s *Store) Get(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// Acknowledge moves an active alert to acknowledged.
func (s *Store) Acknowledge(id, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if a.Status != StatusActive {
		return ErrAlreadyAcknowledged
	}

	now := time.Now().UTC()
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = by
	return nil
}

// Resolve marks an alert resolved regardless of its current status.
func (s *Store) Resolve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	now := time.Now().UTC()
	a.Status = StatusResolved
	a.ResolvedAt = &now
	return nil
}

// List returns all alerts, newest first.
func (s *Store) List() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// RecentUnacknowledged returns up to n active alerts, newest first.
// The hub pushes these as the alerts-channel connect snapshot.
func (s *Store) RecentUnacknowledged(n int) []Alert {
	all := s.List()
	out := make([]Alert, 0, n)
	for _, a := range all {
		if a.Status != StatusActive {
			continue
		}
		out = append(out, a)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}

// Count returns the number of retained alerts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
