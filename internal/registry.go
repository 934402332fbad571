package internal

import (
	"context"
	"sync"

	"github.com/lychee-technology/jsonadm"
)

// Registry maps resource type names to their managers.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]jsonadm.EntityManager
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]jsonadm.EntityManager)}
}

// Register adds m under its resource type, replacing an earlier registration.
func (r *Registry) Register(m jsonadm.EntityManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.ResourceType()
	if _, exists := r.managers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.managers[name] = m
}

// Manager returns the manager of resource or a DomainNotFound error.
func (r *Registry) Manager(ctx context.Context, resource string) (jsonadm.EntityManager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[resource]
	if !ok {
		return nil, jsonadm.NewDomainNotFoundError(resource)
	}
	return m, nil
}

// Has reports whether resource is registered.
func (r *Registry) Has(resource string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.managers[resource]
	return ok
}

// Resources returns the registered resource types in registration order.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
