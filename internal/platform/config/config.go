// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Cache configuration (rate limit counters)
	Cache CacheConfig `toml:"cache"`

	// Store configuration (recorded handler timings)
	Store StoreConfig `toml:"store"`

	// HTTP holds per-service and per-interceptor configuration.
	HTTP HTTPConfig `toml:"http"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies lists CIDRs whose forwarding headers are honoured.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// StoreConfig holds timing store settings.
type StoreConfig struct {
	// Driver is the store driver name: "memory", "sqlite" or "mirror".
	Driver string `toml:"driver"`

	// DataDir is where file-backed drivers keep their data.
	DataDir string `toml:"data_dir"`

	// Mirror configures the JSON export of the mirror driver.
	Mirror MirrorConfig `toml:"mirror"`
}

// MirrorConfig holds [store.mirror] settings.
type MirrorConfig struct {
	// ExportLimit is how many of the newest timings are exported.
	ExportLimit int `toml:"export_limit"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// A service binds interceptors with
	// interceptors = [{ name = "<interceptor>", profile = "<profile>" }].
	Services map[string]map[string]any `toml:"services"`

	// Interceptors maps interceptor names to their raw config maps.
	// Profiles live at [http.interceptors.<name>.profiles.<profile>].
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	return maps.Clone(svcCfg)
}

// Redacted returns a string representation of the config with secrets redacted.
// Cache driver settings may hold credentials, so only driver names are shown.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	sb.WriteString("  Server: {\n")
	fmt.Fprintf(&sb, "    TrustedProxies: %v,\n", c.Server.TrustedProxies)
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	fmt.Fprintf(&sb, "    Level: %q,\n", c.Logging.Level)
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	fmt.Fprintf(&sb, "    Driver: %q,\n", c.Cache.Driver)
	fmt.Fprintf(&sb, "    Drivers: %v [REDACTED],\n", slices.Sorted(maps.Keys(c.Cache.Drivers)))
	sb.WriteString("  },\n")
	sb.WriteString("  Store: {\n")
	fmt.Fprintf(&sb, "    Driver: %q,\n", c.Store.Driver)
	fmt.Fprintf(&sb, "    DataDir: %q,\n", c.Store.DataDir)
	sb.WriteString("  },\n")
	sb.WriteString("  HTTP: {\n")
	fmt.Fprintf(&sb, "    Services: %q,\n", slices.Sorted(maps.Keys(c.HTTP.Services)))
	fmt.Fprintf(&sb, "    Interceptors: %q,\n", slices.Sorted(maps.Keys(c.HTTP.Interceptors)))
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}
