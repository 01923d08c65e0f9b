package manager

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Registry is the fixed mapping from manager to adapter. Collection order
// is stable: pip, brew, npm.
type Registry struct {
	adapters []Adapter
	byName   map[Manager]Adapter
}

// NewRegistry builds the registry with one adapter per supported manager.
func NewRegistry(timeout time.Duration, log *zap.Logger) *Registry {
	run := NewRunner(timeout)
	adapters := []Adapter{
		NewPipAdapter(run, log.Named("pip")),
		NewBrewAdapter(run, log.Named("brew")),
		NewNpmAdapter(run, log.Named("npm")),
	}
	return NewRegistryWith(adapters...)
}

// NewRegistryWith builds a registry from explicit adapters. Used by tests
// to substitute fakes.
func NewRegistryWith(adapters ...Adapter) *Registry {
	byName := make(map[Manager]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Manager()] = a
	}
	return &Registry{adapters: adapters, byName: byName}
}

// Adapters returns all adapters in collection order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// Lookup returns the adapter for a manager.
func (r *Registry) Lookup(m Manager) (Adapter, error) {
	a, ok := r.byName[m]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for manager %q", m)
	}
	return a, nil
}
