// Package memory provides an in-process cache driver with TTL expiry.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	svccfg "github.com/jose/handlerchain/internal/frameworks/service/cfg"
	"github.com/jose/handlerchain/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(conf map[string]any) (cache.CacheWithCounter, error) {
		var c Config
		if err := svccfg.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(time.Duration(c.DefaultTTLSeconds)*time.Second, time.Duration(c.CleanupIntervalSeconds)*time.Second), nil
	})
}

// Config is the [cache.drivers.memory] section.
type Config struct {
	DefaultTTLSeconds      int `mapstructure:"default_ttl_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
}

// ApplyDefaults sets the default TTL to 15 minutes and cleanup to 5 minutes.
func (c *Config) ApplyDefaults() {
	if c.DefaultTTLSeconds <= 0 {
		c.DefaultTTLSeconds = 15 * 60
	}
	if c.CleanupIntervalSeconds <= 0 {
		c.CleanupIntervalSeconds = 5 * 60
	}
}

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// Cache is an in-memory cache. Values and counters live in separate
// namespaces, so a key may hold both.
type Cache struct {
	mu         sync.RWMutex
	values     map[string]*entry
	counters   map[string]*entry
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	closeOnce  sync.Once
}

// New creates a memory cache. A cleanupInterval of 0 disables the
// background sweep; expired entries are then only hidden, not freed.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		values:     make(map[string]*entry),
		counters:   make(map[string]*entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.sweep(cleanupInterval)
	}
	return c
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, m := range []map[string]*entry{c.values, c.counters} {
		for k, e := range m {
			if e.expired(now) {
				delete(m, k)
			}
		}
	}
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get returns a copy of the stored value.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.values[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if e.expired(c.now()) {
		return nil, cache.ErrExpired
	}
	return slices.Clone(e.value), nil
}

// Set stores a copy of value.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := &entry{value: slices.Clone(value), expiresAt: c.now().Add(c.ttl(ttl))}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = e
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.values[key]
	return ok && !e.expired(c.now()), nil
}

func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.counters[key]
	if !ok || e.expired(now) {
		e = &entry{expiresAt: now.Add(c.ttl(ttl))}
		c.counters[key] = e
	}
	e.count += delta
	return e.count, e.expiresAt, nil
}

func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.counters[key]
	if !ok || e.expired(c.now()) {
		return 0, nil
	}
	return e.count, nil
}

func (c *Cache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, key)
	return nil
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
