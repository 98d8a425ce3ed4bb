// Package cache provides TTL key-value storage and windowed counters, used
// by the rate-limit interceptor. Drivers register themselves by name.
package cache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// TTLRateLimit is the default rate limit window.
const TTLRateLimit = time.Minute

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL uses the driver default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Counter provides windowed counters.
type Counter interface {
	// Increment adds delta and returns the new count and the time the
	// window resets. The first increment of a key opens a window of ttl;
	// later increments within the window keep its reset time.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)

	// GetCount returns the current count, or 0 if the key is absent.
	GetCount(ctx context.Context, key string) (int64, error)

	// Reset drops the counter.
	Reset(ctx context.Context, key string) error
}

// CacheWithCounter combines Cache and Counter.
type CacheWithCounter interface {
	Cache
	Counter
}

// DriverFactory builds a driver from its [cache.drivers.<name>] section.
type DriverFactory func(conf map[string]any) (CacheWithCounter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver registers a cache driver. Called from init().
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return slices.Sorted(maps.Keys(drivers))
}

// NewFromConfig builds the named driver. driversCfg is the [cache.drivers]
// table; the driver receives its own sub-table, or nil.
func NewFromConfig(driver string, driversCfg map[string]any) (CacheWithCounter, error) {
	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q (registered: %v)", driver, Drivers())
	}

	var conf map[string]any
	if raw, ok := driversCfg[driver]; ok {
		conf, ok = raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cache.drivers.%s must be a table", driver)
		}
	}

	c, err := factory(conf)
	if err != nil {
		return nil, fmt.Errorf("cache driver %s: %w", driver, err)
	}
	return c, nil
}
