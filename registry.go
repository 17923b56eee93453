package rda

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// =====================================
// Manager Registry
// =====================================

// ErrManagerNotFound is returned when a registry lookup misses
var ErrManagerNotFound = errors.New("manager not found")

// DefaultManagerName is the name used when lookups omit one
const DefaultManagerName = "default"

// Registry holds named Managers for applications talking to more than
// one remote store. It is an explicit value wired through the
// application; the package deliberately keeps no ambient instance.
type Registry struct {
	mutex    sync.RWMutex
	managers map[string]*Manager
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		managers: make(map[string]*Manager),
	}
}

// Register adds a manager under a name, replacing any previous entry
func (r *Registry) Register(name string, manager *Manager) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.managers[name] = manager
}

// RegisterDefault registers a manager under the default name
func (r *Registry) RegisterDefault(manager *Manager) {
	r.Register(DefaultManagerName, manager)
}

// Get retrieves a manager by name, the default one when no name is given
func (r *Registry) Get(name ...string) (*Manager, error) {
	lookup := DefaultManagerName
	if len(name) > 0 {
		lookup = name[0]
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	manager, exists := r.managers[lookup]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrManagerNotFound, lookup)
	}
	return manager, nil
}

// MustGet retrieves a manager by name, panics if not found
func (r *Registry) MustGet(name ...string) *Manager {
	manager, err := r.Get(name...)
	if err != nil {
		panic(err)
	}
	return manager
}

// Names returns all registered manager names
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	return names
}

// Remove closes a manager's handle and drops it from the registry
func (r *Registry) Remove(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	manager, exists := r.managers[name]
	if !exists {
		return fmt.Errorf("%w: '%s'", ErrManagerNotFound, name)
	}

	if err := manager.Close(); err != nil {
		return fmt.Errorf("error closing manager '%s': %w", name, err)
	}

	delete(r.managers, name)
	return nil
}

// CloseAll closes every registered manager and empties the registry
func (r *Registry) CloseAll() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for name, manager := range r.managers {
		if err := manager.Close(); err != nil {
			return fmt.Errorf("error closing manager '%s': %w", name, err)
		}
	}

	r.managers = make(map[string]*Manager)
	return nil
}

// HealthCheck probes every registered manager once and reports the outcomes
func (r *Registry) HealthCheck(ctx context.Context) map[string]bool {
	r.mutex.RLock()
	managers := make(map[string]*Manager, len(r.managers))
	for name, manager := range r.managers {
		managers[name] = manager
	}
	r.mutex.RUnlock()

	results := make(map[string]bool, len(managers))
	for name, manager := range managers {
		results[name] = manager.TestConnectivity(ctx)
	}
	return results
}
