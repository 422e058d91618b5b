// Package store provides the record store backend registry.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

// Backend is a record store that also keeps sync outcomes.
type Backend interface {
	ports.RecordStore
	ports.StatusStore
}

// Factory opens a backend from its configuration.
type Factory func(ctx context.Context, cfg config.StoreConfig) (Backend, error)

// Registry manages the registration and lookup of store backends by kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under kind. Registering a kind twice is an error.
func (r *Registry) Register(kind string, f Factory) error {
	if f == nil {
		return fmt.Errorf("factory cannot be nil")
	}
	if kind == "" {
		return fmt.Errorf("store kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("store kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open opens the backend selected by cfg.Kind.
func (r *Registry) Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("store backend not found: %s", cfg.Kind)
	}
	return f(ctx, cfg)
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry. Backends call it from init
// and a duplicate kind panics.
func Register(kind string, f Factory) {
	if err := defaultRegistry.Register(kind, f); err != nil {
		panic(err)
	}
}

// Open opens a backend from the default registry.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	return defaultRegistry.Open(ctx, cfg)
}

// Kinds lists the kinds in the default registry.
func Kinds() []string {
	return defaultRegistry.Kinds()
}
