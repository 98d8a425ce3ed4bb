package service

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// CoreServices are constructed even when no [http.services.<name>] section
// is present in the config. The order is the mount order.
var CoreServices = []string{"app", "api"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register adds a service constructor under name.
// Registering the same name twice is an error.
func Register(name string, newFunc NewService) error {
	if newFunc == nil {
		return fmt.Errorf("service %q: nil constructor", name)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is Register for init() blocks; it panics on error.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor registered under name, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the registered service names, sorted.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}

// resetRegistry is for testing only.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}
