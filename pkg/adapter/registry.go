package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory builds an unconnected warehouse. A nil logger means discard.
type Factory func(*slog.Logger) Warehouse

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a warehouse type available under name (case-insensitive).
// Adapters call it from init. Registering the same name twice, or an empty
// name or nil factory, panics.
func Register(name string, factory Factory) {
	key := normalize(name)
	if key == "" || factory == nil {
		panic("adapter: Register called with empty name or nil factory")
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := factories[key]; dup {
		panic(fmt.Sprintf("adapter: Register called twice for %q", key))
	}
	factories[key] = factory
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[normalize(name)]
	return f, ok
}

// NewAdapter builds the warehouse named by cfg.Type. Connect must be called
// before use.
func NewAdapter(cfg Config, logger *slog.Logger) (Warehouse, error) {
	if normalize(cfg.Type) == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	return factory(logger), nil
}

// ListAdapters returns the registered names, sorted.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name has a factory.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UnknownAdapterError is returned for a warehouse.type nobody registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown warehouse type %q (available: %s); check warehouse.type in caaspp.yaml",
		e.Type, strings.Join(e.Available, ", "))
}
