// Package api provides the /api/* endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jose/handlerchain/internal/components/api"
	"github.com/jose/handlerchain/internal/frameworks/service"
	svccfg "github.com/jose/handlerchain/internal/frameworks/service/cfg"
	"github.com/jose/handlerchain/internal/frameworks/service/httpwrap"
	"github.com/jose/handlerchain/internal/platform/appctx"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/logutil"
	"github.com/jose/handlerchain/internal/platform/store"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// Metrics toggles GET /metrics.
	Metrics bool `mapstructure:"metrics"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// TimingsResponse is the body of GET /timings.
type TimingsResponse struct {
	Handler string          `json:"handler,omitempty"`
	Count   int             `json:"count"`
	Timings []*store.Timing `json:"timings"`
}

// New creates a new API service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	c := Config{Metrics: true}
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	r := chi.NewRouter()

	r.Get("/healthz", api.HealthHandler)
	r.Get("/timings", timingsHandler(d.Store))

	if c.Metrics {
		var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
		if d.Metrics != nil {
			gatherer = d.Metrics
		}
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return &Service{router: r, conf: &c, log: log}, nil
}

// timingsHandler serves GET /timings?handler=<name>&limit=<n>, newest first.
func timingsHandler(ts store.TimingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ts == nil {
			api.WriteError(w, http.StatusServiceUnavailable, api.ReasonStoreUnavailable, "timing store is not configured")
			return
		}

		q := r.URL.Query()
		limit := store.DefaultListLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				api.WriteBadRequest(w, api.ReasonInvalidField, "limit must be a positive integer")
				return
			}
			limit = n
		}
		handler := q.Get("handler")

		timings, err := ts.ListTimings(r.Context(), handler, limit)
		if err != nil {
			appctx.GetLogger(r.Context()).Error("failed to list timings", "handler", handler, "error", err)
			if errors.Is(err, store.ErrClosed) {
				api.WriteError(w, http.StatusServiceUnavailable, api.ReasonStoreUnavailable, "timing store is closed")
				return
			}
			api.WriteInternalError(w, "failed to list timings")
			return
		}
		if timings == nil {
			timings = []*store.Timing{}
		}

		_ = api.WriteJSON(w, http.StatusOK, TimingsResponse{
			Handler: handler,
			Count:   len(timings),
			Timings: timings,
		})
	}
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
