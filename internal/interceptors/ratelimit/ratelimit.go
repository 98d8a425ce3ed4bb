// Package ratelimit provides a rate limiting interceptor using the cache subsystem.
package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jose/handlerchain/internal/chain"
	"github.com/jose/handlerchain/internal/components/api"
	svccfg "github.com/jose/handlerchain/internal/frameworks/service/cfg"
	"github.com/jose/handlerchain/internal/frameworks/service/httpwrap"
	"github.com/jose/handlerchain/internal/interceptors"
	"github.com/jose/handlerchain/internal/platform/cache"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/logutil"
)

// Name is the registry name of the interceptor.
const Name = "ratelimit"

func init() {
	interceptors.Register(Name, New)
}

// Key scopes.
const (
	// ScopeClient counts every request of a client against one budget.
	ScopeClient = "client"
	// ScopeRoute gives each client a separate budget per request path.
	ScopeRoute = "route"
)

// Config defines rate limiting parameters decoded from interceptor config.
type Config struct {
	RequestsPerWindow int64  `mapstructure:"requests_per_window"`
	WindowSeconds     int    `mapstructure:"window_seconds"`
	Scope             string `mapstructure:"scope"`
}

// ApplyDefaults sets 100 requests per 60 second window, scoped per client.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
	if c.Scope == "" {
		c.Scope = ScopeClient
	}
}

func (c *Config) validate() error {
	if c.RequestsPerWindow < 0 {
		return fmt.Errorf("requests_per_window must be positive, got %d", c.RequestsPerWindow)
	}
	if c.WindowSeconds < 0 {
		return fmt.Errorf("window_seconds must be positive, got %d", c.WindowSeconds)
	}
	switch c.Scope {
	case "", ScopeClient, ScopeRoute:
		return nil
	default:
		return fmt.Errorf("scope must be one of %s, %s; got %q", ScopeClient, ScopeRoute, c.Scope)
	}
}

// Limiter counts requests per client in fixed windows.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New creates the interceptor from a [http.interceptors.ratelimit.profiles.<name>]
// section. Counters live in the shared cache; clients are keyed by real IP.
func New(conf map[string]any, log *slog.Logger) (chain.Entry, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return chain.Entry{}, err
	}
	if err := c.validate(); err != nil {
		return chain.Entry{}, fmt.Errorf("ratelimit config: %w", err)
	}

	d := deps.GetDeps()
	if d == nil || d.Cache == nil {
		return chain.Entry{}, errors.New("ratelimit: shared cache is not configured")
	}

	limiter := NewLimiter(d.Cache, d.RealIP.GetClientIPString, c, log)
	if c.Scope == ScopeRoute {
		limiter = limiter.WithKeyFunc(RouteKey(d.RealIP.GetClientIPString))
	}
	return limiter.Entry(), nil
}

// RouteKey keys a request by client and path.
func RouteKey(client func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		return client(r) + ":" + r.URL.Path
	}
}

// NewLimiter builds a limiter over counter. c is defaulted if needed.
func NewLimiter(counter cache.Counter, keyFunc func(*http.Request) string, c Config, log *slog.Logger) *Limiter {
	c.ApplyDefaults()
	return &Limiter{
		cache:   counter,
		keyFunc: keyFunc,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
	}
}

// Entry returns the chain entry. The limiter has no post phase.
func (l *Limiter) Entry() chain.Entry {
	return chain.Entry{Name: Name, Pre: l.PreHandle}
}

// PreHandle counts the request and stops the chain with 429 once the
// client is over its limit. Cache failures let the request through.
func (l *Limiter) PreHandle(x *chain.Exchange, handler string) (bool, error) {
	r, err := httpwrap.Request(x)
	if err != nil {
		return false, err
	}

	key := l.keyFunc(r)
	count, resetAt, err := l.cache.Increment(x.Context(), "ratelimit:"+key, 1, l.window)
	if err != nil {
		l.log.Warn("rate limit check failed", "handler", handler, "error", err)
		return true, nil
	}
	if count <= l.limit {
		return true, nil
	}

	retryAfter := int(time.Until(resetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	resp := api.ErrorResponse(http.StatusTooManyRequests, api.ReasonRateLimited, "too many requests")
	resp.Header.Set("Retry-After", strconv.Itoa(retryAfter))
	x.Respond(resp)

	l.log.Debug("rate limited", "handler", handler, "client", key, "count", count)
	return false, nil
}

// WithKeyFunc returns a copy of l keyed by fn.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	cp := *l
	cp.keyFunc = fn
	return &cp
}
