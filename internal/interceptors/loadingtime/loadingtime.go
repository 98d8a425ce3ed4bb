// Package loadingtime measures how long each intercepted handler takes.
//
// The pre-hook stamps a start time and injects a random delay to simulate
// load; the post-hook logs the elapsed time and records it in the timing
// store. A profile may also refuse to load selected handlers, answering
// with an error body instead of running them.
package loadingtime

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jose/handlerchain/internal/chain"
	"github.com/jose/handlerchain/internal/components/api"
	svccfg "github.com/jose/handlerchain/internal/frameworks/service/cfg"
	"github.com/jose/handlerchain/internal/frameworks/service/httpwrap"
	"github.com/jose/handlerchain/internal/interceptors"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/logutil"
	"github.com/jose/handlerchain/internal/platform/store"
)

// Name is the registry name of the interceptor.
const Name = "loadingtime"

// AttrStart prefixes the attribute holding the time.Time stamped by the
// pre-hook. Each interceptor appends its own sequence number.
const AttrStart = "loadingtime.start"

// attrBlocked prefixes the attribute set when an interceptor refused the handler.
const attrBlocked = "loadingtime.blocked"

var instances atomic.Uint64

// DateLayout formats the date field of the blocked response.
const DateLayout = "Mon Jan 02 15:04:05 MST 2006"

func init() {
	interceptors.Register(Name, New)
}

// Config is a [http.interceptors.loadingtime.profiles.<name>] section.
type Config struct {
	// Component prefixes every log line.
	Component string `mapstructure:"component"`
	// MaxDelayMs bounds the injected delay, drawn from [0, MaxDelayMs).
	// Nil means 500; 0 disables the delay.
	MaxDelayMs *int `mapstructure:"max_delay_ms"`
	// Block refuses every handler.
	Block bool `mapstructure:"block"`
	// BlockHandlers refuses only the listed handlers.
	BlockHandlers []string `mapstructure:"block_handlers"`
	// Status is the status of a refused handler's response.
	Status int `mapstructure:"status"`
}

func (c *Config) ApplyDefaults() {
	if c.Component == "" {
		c.Component = "LoadingTimeInterceptor"
	}
	if c.MaxDelayMs == nil {
		d := 500
		c.MaxDelayMs = &d
	}
	if c.Status == 0 {
		c.Status = http.StatusUnauthorized
	}
}

func (c *Config) validate() error {
	if *c.MaxDelayMs < 0 {
		return fmt.Errorf("max_delay_ms must not be negative, got %d", *c.MaxDelayMs)
	}
	if c.Status < 100 || c.Status > 599 {
		return fmt.Errorf("status %d is not a valid HTTP status", c.Status)
	}
	return nil
}

// BlockedBody is the response body for a refused handler.
type BlockedBody struct {
	Error string `json:"error"`
	Date  string `json:"date"`
}

// Interceptor is a configured loading-time interceptor.
type Interceptor struct {
	cfg      Config
	maxDelay time.Duration
	log      *slog.Logger
	store    store.TimingStore

	startKey   string
	blockedKey string

	now    func() time.Time
	sleep  func(d time.Duration)
	jitter func(n int64) int64
}

// Option customises an Interceptor.
type Option func(*Interceptor)

// WithStore records samples into s instead of the shared store.
func WithStore(s store.TimingStore) Option {
	return func(i *Interceptor) { i.store = s }
}

// WithClock replaces the clock and the delay function.
func WithClock(now func() time.Time, sleep func(d time.Duration)) Option {
	return func(i *Interceptor) {
		i.now = now
		i.sleep = sleep
	}
}

// WithJitter replaces the random source; fn returns a value in [0, n).
func WithJitter(fn func(n int64) int64) Option {
	return func(i *Interceptor) { i.jitter = fn }
}

// New is the registry constructor. It records into the shared store.
func New(conf map[string]any, log *slog.Logger) (chain.Entry, error) {
	var opts []Option
	if d := deps.GetDeps(); d != nil && d.Store != nil {
		opts = append(opts, WithStore(d.Store))
	}
	i, err := Build(conf, log, opts...)
	if err != nil {
		return chain.Entry{}, err
	}
	return i.Entry(), nil
}

// Build decodes conf and applies opts.
func Build(conf map[string]any, log *slog.Logger, opts ...Option) (*Interceptor, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(conf, &c)
	if err != nil {
		return nil, fmt.Errorf("loadingtime config: %w", err)
	}
	if len(unused) > 0 {
		log.Warn("loadingtime config has unused keys", "keys", unused)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("loadingtime config: %w", err)
	}

	seq := strconv.FormatUint(instances.Add(1), 10)
	i := &Interceptor{
		cfg:        c,
		maxDelay:   time.Duration(*c.MaxDelayMs) * time.Millisecond,
		log:        log,
		startKey:   AttrStart + "." + seq,
		blockedKey: attrBlocked + "." + seq,
		now:        time.Now,
		sleep:      time.Sleep,
		jitter:     rand.Int64N,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Entry returns the chain entry for i.
func (i *Interceptor) Entry() chain.Entry {
	return chain.Entry{Name: Name, Pre: i.PreHandle, Post: i.PostHandle}
}

// Blocks reports whether handler is refused.
func (i *Interceptor) Blocks(handler string) bool {
	return i.cfg.Block || slices.Contains(i.cfg.BlockHandlers, handler)
}

// PreHandle stamps the start time, waits out the injected delay and, for
// refused handlers, responds with an error body and stops the chain.
func (i *Interceptor) PreHandle(x *chain.Exchange, handler string) (bool, error) {
	x.Set(i.startKey, i.now())

	if i.maxDelay > 0 {
		// Not cut short by cancellation; the recorded time always covers the delay.
		i.sleep(time.Duration(i.jitter(int64(i.maxDelay))))
	}

	i.log.Info(fmt.Sprintf("%s: preHandle() entered method %s...", i.cfg.Component, handler),
		"handler", handler, "dispatch_id", httpwrap.DispatchID(x))

	if !i.Blocks(handler) {
		return true, nil
	}

	resp, err := api.JSONResponse(i.cfg.Status, BlockedBody{
		Error: "Could not load " + handler,
		Date:  i.now().Format(DateLayout),
	})
	if err != nil {
		return false, err
	}
	x.Set(i.blockedKey, true)
	x.Respond(resp)
	return false, nil
}

// PostHandle logs and records the time taken since PreHandle.
func (i *Interceptor) PostHandle(x *chain.Exchange, handler string, resp *chain.Response) error {
	start, err := chain.Value[time.Time](x, i.startKey)
	if err != nil {
		return fmt.Errorf("%s: %w", i.cfg.Component, err)
	}
	elapsed := i.now().Sub(start)
	dispatchID := httpwrap.DispatchID(x)

	i.log.Info(fmt.Sprintf("%s: postHandle() exiting method %s...", i.cfg.Component, handler),
		"handler", handler, "dispatch_id", dispatchID)
	i.log.Info(fmt.Sprintf("%s: Time taken for method %s is %d ms", i.cfg.Component, handler, elapsed.Milliseconds()),
		"handler", handler, "dispatch_id", dispatchID, "duration_ms", elapsed.Milliseconds())

	if i.store == nil {
		return nil
	}
	t := &store.Timing{
		Handler:     handler,
		Interceptor: i.cfg.Component,
		DispatchID:  dispatchID,
		DurationMs:  elapsed.Milliseconds(),
		Blocked:     i.blocked(x),
	}
	if err := i.store.RecordTiming(x.Context(), t); err != nil {
		i.log.Warn("failed to record timing", "handler", handler, "error", err)
	}
	return nil
}

// blocked reports whether this interceptor, not another entry, stopped x.
func (i *Interceptor) blocked(x *chain.Exchange) bool {
	v, ok := x.Get(i.blockedKey)
	return ok && v == true
}
