package interceptors

import (
	"fmt"
	"log/slog"

	"github.com/jose/handlerchain/internal/chain"
	"github.com/jose/handlerchain/internal/platform/logutil"
)

// Binding attaches a registered interceptor, configured by one of its
// profiles, to a service. It is one element of
// interceptors = [{ name = "...", profile = "..." }].
type Binding struct {
	Name    string `mapstructure:"name"`
	Profile string `mapstructure:"profile"`
}

// GetProfileConfig looks up a named profile from an interceptor's config.
// The interceptorsCfg is typically deps.GetDeps().Config.HTTP.Interceptors.
func GetProfileConfig(interceptorsCfg map[string]map[string]any, interceptorName, profileName string) (map[string]any, error) {
	if interceptorsCfg == nil {
		return nil, fmt.Errorf("no interceptors configured, cannot find %s profile %q", interceptorName, profileName)
	}
	interceptorCfg, ok := interceptorsCfg[interceptorName]
	if !ok {
		return nil, fmt.Errorf("no %s interceptor configured, cannot find profile %q", interceptorName, profileName)
	}
	profiles, ok := interceptorCfg["profiles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("no %s profiles configured, cannot find profile %q", interceptorName, profileName)
	}
	profileRaw, ok := profiles[profileName]
	if !ok {
		return nil, fmt.Errorf("%s profile %q not found", interceptorName, profileName)
	}
	profileConfig, ok := profileRaw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s profile %q is not a map", interceptorName, profileName)
	}
	return profileConfig, nil
}

// BuildChain constructs a chain with one entry per binding, in binding order.
// An unknown interceptor or profile is an error. A binding without a profile
// gets the interceptor's defaults.
func BuildChain(bindings []Binding, interceptorsCfg map[string]map[string]any, log *slog.Logger) (*chain.Chain, error) {
	log = logutil.NoopIfNil(log)

	c := chain.New()
	for i, b := range bindings {
		newFn, ok := Get(b.Name)
		if !ok {
			return nil, fmt.Errorf("interceptor binding %d: unknown interceptor %q (registered: %v)", i, b.Name, Names())
		}

		var conf map[string]any
		if b.Profile != "" {
			var err error
			conf, err = GetProfileConfig(interceptorsCfg, b.Name, b.Profile)
			if err != nil {
				return nil, fmt.Errorf("interceptor binding %d: %w", i, err)
			}
		}

		entry, err := newFn(conf, log.With("interceptor", b.Name))
		if err != nil {
			return nil, fmt.Errorf("interceptor %s: %w", b.Name, err)
		}
		if entry.Name == "" {
			entry.Name = b.Name
		}
		c.Register(entry)
	}
	return c, nil
}
