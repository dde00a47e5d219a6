// Package registry manages connector registration and lookup. Platform
// packages self-register from init, so importing a connector package is all
// it takes to make it available.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/errors"
)

// Factory creates one connector instance.
type Factory func() connector.Connector

// Registry maps connector names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a connector factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s already registered", name))
	}
	r.factories[name] = factory
	return nil
}

// Get instantiates the named connector.
func (r *Registry) Get(name string) (connector.Connector, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s not found", name))
	}
	return factory(), nil
}

// List returns registered connector names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a connector factory to the global registry. Platform
// packages call this from init and panic on collision, which only happens on
// a programming error.
func Register(name string, factory Factory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// Get instantiates a connector from the global registry.
func Get(name string) (connector.Connector, error) {
	return globalRegistry.Get(name)
}

// List returns the global registry's connector names.
func List() []string {
	return globalRegistry.List()
}
