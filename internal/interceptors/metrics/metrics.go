// Package metrics exports per-handler dispatch counts and latencies to
// Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jose/handlerchain/internal/chain"
	svccfg "github.com/jose/handlerchain/internal/frameworks/service/cfg"
	"github.com/jose/handlerchain/internal/interceptors"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/logutil"
)

// Name is the registry name of the interceptor.
const Name = "metrics"

// AttrStart prefixes the per-interceptor attribute holding the time.Time
// stamped by the pre-hook.
const AttrStart = "metrics.start"

var instances atomic.Uint64

// Dispatch outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeStopped = "stopped"
	OutcomeError   = "error"
)

func init() {
	interceptors.Register(Name, New)
}

// Config is a [http.interceptors.metrics.profiles.<name>] section.
type Config struct {
	// Buckets are the latency histogram buckets in seconds.
	Buckets []float64 `mapstructure:"buckets"`
}

func (c *Config) ApplyDefaults() {
	if len(c.Buckets) == 0 {
		c.Buckets = prometheus.DefBuckets
	}
}

// Collectors are the metrics written by the interceptor.
type Collectors struct {
	DispatchTotal   *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
}

// NewCollectors registers the collectors on reg. Collectors already
// registered by an earlier chain are reused, so several services may bind
// the interceptor.
func NewCollectors(reg prometheus.Registerer, buckets []float64) (*Collectors, error) {
	total, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "handlerchain",
			Name:      "dispatch_total",
			Help:      "Dispatches through an interceptor chain by handler and outcome.",
		},
		[]string{"handler", "outcome"},
	))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "handlerchain",
			Name:      "handler_duration_seconds",
			Help:      "Time from the interceptor's pre-hook to its post-hook.",
			Buckets:   buckets,
		},
		[]string{"handler"},
	))
	if err != nil {
		return nil, err
	}

	return &Collectors{DispatchTotal: total, HandlerDuration: duration}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

// Interceptor observes each dispatch it wraps.
type Interceptor struct {
	c        *Collectors
	startKey string
	now      func() time.Time
	log      *slog.Logger
}

// New is the registry constructor. It registers on the shared registry.
func New(conf map[string]any, log *slog.Logger) (chain.Entry, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return chain.Entry{}, err
	}

	d := deps.GetDeps()
	if d == nil || d.Metrics == nil {
		return chain.Entry{}, errors.New("metrics: shared registry is not configured")
	}

	collectors, err := NewCollectors(d.Metrics, c.Buckets)
	if err != nil {
		return chain.Entry{}, fmt.Errorf("metrics: %w", err)
	}
	return NewInterceptor(collectors, log).Entry(), nil
}

// NewInterceptor wraps existing collectors.
func NewInterceptor(c *Collectors, log *slog.Logger) *Interceptor {
	return &Interceptor{
		c:        c,
		startKey: AttrStart + "." + strconv.FormatUint(instances.Add(1), 10),
		now:      time.Now,
		log:      logutil.NoopIfNil(log),
	}
}

func (i *Interceptor) Entry() chain.Entry {
	return chain.Entry{Name: Name, Pre: i.PreHandle, Post: i.PostHandle}
}

func (i *Interceptor) PreHandle(x *chain.Exchange, handler string) (bool, error) {
	x.Set(i.startKey, i.now())
	return true, nil
}

func (i *Interceptor) PostHandle(x *chain.Exchange, handler string, resp *chain.Response) error {
	start, err := chain.Value[time.Time](x, i.startKey)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	i.c.HandlerDuration.WithLabelValues(handler).Observe(i.now().Sub(start).Seconds())
	i.c.DispatchTotal.WithLabelValues(handler, Outcome(x)).Inc()
	return nil
}

// Outcome classifies a finished dispatch.
func Outcome(x *chain.Exchange) string {
	switch {
	case x.Err() != nil:
		return OutcomeError
	case x.Stopped():
		return OutcomeStopped
	default:
		return OutcomeOK
	}
}
