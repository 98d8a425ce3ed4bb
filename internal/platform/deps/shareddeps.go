// Package deps holds the dependencies shared by services and interceptors.
// main builds them once and publishes them with SetDeps before any service
// is constructed.
package deps

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jose/handlerchain/internal/platform/cache"
	"github.com/jose/handlerchain/internal/platform/config"
	"github.com/jose/handlerchain/internal/platform/http/realip"
	"github.com/jose/handlerchain/internal/platform/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds shared dependencies for all services.
type Deps struct {
	Config *config.Config

	// Cache backs the rate-limit counters.
	Cache cache.CacheWithCounter

	// Store receives timing samples; nil disables recording.
	Store store.TimingStore

	// Metrics is the registry served at /api/metrics.
	Metrics *prometheus.Registry

	// RealIP is the single source of client identity for logging and
	// rate limiting.
	RealIP *realip.TrustedProxies
}

// SetDeps publishes d. Only the first call has an effect.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies, or nil before SetDeps.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
