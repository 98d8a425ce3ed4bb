// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	LoggingLevel *string
	CacheDriver  *string
	StoreDriver  *string
	StoreDataDir *string
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`

	Server  *ServerConfig   `toml:"server"`
	Logging *LoggingConfig  `toml:"logging"`
	Cache   *CacheConfig    `toml:"cache"`
	Store   *StoreConfig    `toml:"store"`
	HTTP    *httpFileConfig `toml:"http"`
}

// httpFileConfig holds per-service HTTP configuration from TOML.
type httpFileConfig struct {
	Services     map[string]map[string]any `toml:"services"`
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields and interceptor bindings
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown/undecoded TOML keys produce a warning
// but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}
	if err := validateInterceptorBindings(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// defaultHTTPConfig binds the loading-time interceptor to the app service's
// foo and bar handlers. baz stays outside the chain.
func defaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Services: map[string]map[string]any{
			"app": {
				"interceptors": []map[string]any{
					{"name": "loadingtime", "profile": "default"},
				},
				"exclude_handlers": []string{"baz"},
			},
		},
		Interceptors: map[string]map[string]any{
			"loadingtime": {
				"profiles": map[string]any{
					"default": map[string]any{
						"max_delay_ms": 500,
					},
					"blocking": map[string]any{
						"max_delay_ms": 500,
						"block":        true,
					},
				},
			},
			"ratelimit": {
				"profiles": map[string]any{
					"default": map[string]any{
						"requests_per_window": 100,
						"window_seconds":      60,
					},
				},
			},
			"metrics": {
				"profiles": map[string]any{
					"default": map[string]any{},
				},
			},
		},
	}
}

// StrictConfig returns production defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:       string(ModeStrict),
		ListenAddr: ":8080",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".handlerchain/data",
		},
		HTTP: defaultHTTPConfig(),
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Logging.Level = "debug"
	cfg.Store.Driver = "memory"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil && len(fc.Server.TrustedProxies) > 0 {
		cfg.Server.TrustedProxies = fc.Server.TrustedProxies
	}

	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if fc.Store.Mirror.ExportLimit > 0 {
			cfg.Store.Mirror.ExportLimit = fc.Store.Mirror.ExportLimit
		}
	}

	// Per-name replacement: a service or interceptor section in the file
	// replaces the preset section of the same name wholesale.
	if fc.HTTP != nil {
		if len(fc.HTTP.Services) > 0 {
			if cfg.HTTP.Services == nil {
				cfg.HTTP.Services = make(map[string]map[string]any)
			}
			for name, svcCfg := range fc.HTTP.Services {
				cfg.HTTP.Services[name] = svcCfg
			}
		}
		if len(fc.HTTP.Interceptors) > 0 {
			if cfg.HTTP.Interceptors == nil {
				cfg.HTTP.Interceptors = make(map[string]map[string]any)
			}
			for name, intCfg := range fc.HTTP.Interceptors {
				cfg.HTTP.Interceptors[name] = intCfg
			}
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.StoreDataDir != nil && *f.StoreDataDir != "" {
		cfg.Store.DataDir = *f.StoreDataDir
	}
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, redis", cfg.Cache.Driver)
	}

	switch cfg.Store.Driver {
	case "memory":
	case "sqlite", "mirror":
		if cfg.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the %s driver", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of memory, sqlite, mirror", cfg.Store.Driver)
	}

	return nil
}

// validateInterceptorBindings checks that every interceptor binding in
// [http.services.<svc>] names a profile defined under
// [http.interceptors.<name>.profiles]. Whether the interceptor itself is
// registered is checked when the service builds its chain.
func validateInterceptorBindings(cfg *Config) error {
	for name, intCfg := range cfg.HTTP.Interceptors {
		profilesRaw, ok := intCfg["profiles"]
		if !ok {
			continue
		}
		profiles, ok := profilesRaw.(map[string]any)
		if !ok {
			return fmt.Errorf("http.interceptors.%s.profiles must be a map", name)
		}
		for profile, p := range profiles {
			if _, ok := p.(map[string]any); !ok {
				return fmt.Errorf("http.interceptors.%s.profiles.%s must be a map", name, profile)
			}
		}
	}

	for svcName, svcCfg := range cfg.HTTP.Services {
		raw, ok := svcCfg["interceptors"]
		if !ok {
			continue
		}
		bindings, err := bindingMaps(raw)
		if err != nil {
			return fmt.Errorf("http.services.%s.interceptors: %w", svcName, err)
		}
		for i, b := range bindings {
			name, _ := b["name"].(string)
			if name == "" {
				return fmt.Errorf("http.services.%s.interceptors[%d]: name is required", svcName, i)
			}
			profile, _ := b["profile"].(string)
			if profile == "" {
				continue
			}
			if !hasProfile(cfg.HTTP.Interceptors, name, profile) {
				return fmt.Errorf("http.services.%s.interceptors[%d] references undefined profile %q of %s", svcName, i, profile, name)
			}
		}
	}

	return nil
}

// bindingMaps normalises the shapes TOML and Go presets produce for an
// array of inline tables.
func bindingMaps(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entry %d must be a table", i)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be an array of tables, got %T", raw)
	}
}

func hasProfile(interceptors map[string]map[string]any, name, profile string) bool {
	intCfg, ok := interceptors[name]
	if !ok {
		return false
	}
	profiles, ok := intCfg["profiles"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = profiles[profile]
	return ok
}
