package store

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// DriverConfig selects and configures a driver.
type DriverConfig struct {
	// Driver is the driver name: memory, sqlite.
	Driver string `json:"driver"`

	// DataDir is the directory for file-backed drivers.
	DataDir string `json:"data_dir"`

	// Mirror configures the JSON export of the mirror driver.
	Mirror MirrorConfig `json:"mirror"`
}

// MirrorConfig controls the mirror driver's one-way JSON export.
type MirrorConfig struct {
	// ExportLimit is how many of the newest timings are exported.
	// Non-positive values use DefaultListLimit.
	ExportLimit int `json:"export_limit"`
}

// DriverFactory creates an uninitialised driver.
type DriverFactory func(cfg *DriverConfig) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name. Called from init().
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates the configured driver. The caller runs Init.
func New(cfg *DriverConfig) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
	return factory(cfg)
}

// AvailableDrivers returns the registered driver names, sorted.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return slices.Sorted(maps.Keys(drivers))
}
