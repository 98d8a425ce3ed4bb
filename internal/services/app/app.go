// Package app provides the /app/* demo controller endpoints.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jose/handlerchain/internal/chain"
	"github.com/jose/handlerchain/internal/components/api"
	"github.com/jose/handlerchain/internal/frameworks/service"
	svccfg "github.com/jose/handlerchain/internal/frameworks/service/cfg"
	"github.com/jose/handlerchain/internal/frameworks/service/httpwrap"
	"github.com/jose/handlerchain/internal/interceptors"
	"github.com/jose/handlerchain/internal/interceptors/loadingtime"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/logutil"
)

func init() {
	service.MustRegister("app", New)
}

// Handlers are the controller's endpoints, each served at /app/<name>.
var Handlers = []string{"foo", "bar", "baz"}

// Config holds app service configuration.
type Config struct {
	// Interceptors is the ordered chain wrapped around every handler.
	Interceptors []interceptors.Binding `mapstructure:"interceptors"`

	// ExcludeHandlers are served directly, outside the chain.
	ExcludeHandlers []string `mapstructure:"exclude_handlers"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Message is the body every controller endpoint returns.
type Message struct {
	Message string `json:"message"`
	Date    string `json:"date"`
}

// Service is the app service.
type Service struct {
	router chi.Router
	chain  *chain.Chain
	conf   *Config
	log    *slog.Logger
	now    func() time.Time
}

// New creates the app service and builds its interceptor chain.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "app", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	var interceptorsCfg map[string]map[string]any
	if d.Config != nil {
		interceptorsCfg = d.Config.HTTP.Interceptors
	}
	ch, err := interceptors.BuildChain(c.Interceptors, interceptorsCfg, log)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	for _, name := range c.ExcludeHandlers {
		if !slices.Contains(Handlers, name) {
			log.Warn("exclude_handlers names an unknown handler", "service", "app", "handler", name)
		}
	}

	s := &Service{chain: ch, conf: &c, log: log, now: time.Now}

	r := chi.NewRouter()
	for _, name := range Handlers {
		r.Method(http.MethodGet, "/"+name, httpwrap.Intercept(s.chainFor(name), name, s.handle(name), log))
	}
	s.router = r

	log.Info("app service ready", "interceptors", ch.Names(), "excluded", c.ExcludeHandlers)
	return s, nil
}

// chainFor returns nil for excluded handlers.
func (s *Service) chainFor(name string) *chain.Chain {
	if slices.Contains(s.conf.ExcludeHandlers, name) {
		return nil
	}
	return s.chain
}

func (s *Service) handle(name string) chain.HandlerFunc {
	return func(x *chain.Exchange) (*chain.Response, error) {
		return api.JSONResponse(http.StatusOK, Message{
			Message: "handler " + name + " of the controller",
			Date:    s.now().Format(loadingtime.DateLayout),
		})
	}
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "app"
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
