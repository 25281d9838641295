package providers

import (
	"errors"
	"sync"
)

// Registry manages dispatcher instances keyed by backend ID.
// Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[string]Dispatcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		dispatchers: make(map[string]Dispatcher),
	}
}

// Register registers a dispatcher under a backend ID.
func (r *Registry) Register(id string, d Dispatcher) error {
	if d == nil {
		return errors.New("dispatcher cannot be nil")
	}
	if id == "" {
		return errors.New("backend id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.dispatchers[id]; exists {
		return ErrBackendAlreadyRegistered
	}
	r.dispatchers[id] = d
	return nil
}

// Get retrieves a dispatcher by backend ID.
func (r *Registry) Get(id string) (Dispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.dispatchers[id]
	if !exists {
		return nil, ErrBackendNotFound
	}
	return d, nil
}

// IDs returns all registered backend IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.dispatchers))
	for id := range r.dispatchers {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered dispatchers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dispatchers)
}
