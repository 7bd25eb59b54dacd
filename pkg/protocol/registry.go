package protocol

import (
	"fmt"
	"sync"
)

// Factory constructs a Service for a protocol family.
type Factory func() (Service, error)

// Registry maps protocol type tags to services, constructing each
// service lazily on first lookup. It is safe for concurrent use.
type Registry struct {
	factories map[Protocol]Factory
	services  map[Protocol]Service
	mu        sync.Mutex
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Protocol]Factory),
		services:  make(map[Protocol]Service),
	}
}

// Register adds a service factory for a protocol type.
// Returns ErrFactoryExists if the type already has a factory.
func (r *Registry) Register(p Protocol, f Factory) error {
	if f == nil {
		return ErrNilService
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[p]; exists {
		return fmt.Errorf("%w: %s", ErrFactoryExists, p)
	}
	r.factories[p] = f
	return nil
}

// Lookup returns the service for a protocol type, constructing it on
// first use. Returns ErrUnknownProtocol for unregistered types.
func (r *Registry) Lookup(p Protocol) (Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[p]; ok {
		return svc, nil
	}

	f, ok := r.factories[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, p)
	}

	svc, err := f()
	if err != nil {
		return nil, fmt.Errorf("constructing %s service: %w", p, err)
	}
	r.services[p] = svc
	return svc, nil
}

// Known reports whether a factory is registered for the protocol type.
func (r *Registry) Known(p Protocol) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[p]
	return ok
}

// Protocols returns the registered protocol type tags.
func (r *Registry) Protocols() []Protocol {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Protocol, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	return out
}
