package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jose/handlerchain/internal/platform/config"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/store"
	"github.com/jose/handlerchain/internal/platform/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDeps(t *testing.T, d *deps.Deps) {
	t.Helper()
	if d.Config == nil {
		d.Config = config.DevConfig()
	}
	deps.ResetDeps()
	deps.SetDeps(d)
	t.Cleanup(deps.ResetDeps)
}

func newHandler(t *testing.T, conf map[string]any) http.Handler {
	t.Helper()
	svc, err := New(conf, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc.Handler()
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func seed(t *testing.T, st store.TimingStore) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []struct {
		handler string
		ms      int64
	}{
		{"foo", 120}, {"bar", 40}, {"foo", 310}, {"foo", 7},
	}
	for i, s := range samples {
		err := st.RecordTiming(context.Background(), &store.Timing{
			Handler:    s.handler,
			DurationMs: s.ms,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordTiming() error = %v", err)
		}
	}
}

func TestNew_FailsWithoutSharedDeps(t *testing.T) {
	deps.ResetDeps()
	if _, err := New(map[string]any{}, quietLogger()); err == nil {
		t.Error("expected error when SharedDeps not initialized")
	}
}

func TestService_Prefix(t *testing.T) {
	setupTestDeps(t, &deps.Deps{})
	svc, err := New(nil, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if svc.Prefix() != "api" {
		t.Errorf("expected prefix 'api', got %q", svc.Prefix())
	}
}

func TestHealthz(t *testing.T) {
	setupTestDeps(t, &deps.Deps{})
	rec := get(newHandler(t, nil), "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestTimings(t *testing.T) {
	st := memory.New(0)
	seed(t, st)
	setupTestDeps(t, &deps.Deps{Store: st})
	h := newHandler(t, nil)

	tests := []struct {
		name      string
		target    string
		wantCount int
		wantFirst int64
	}{
		{"all handlers", "/timings", 4, 7},
		{"filtered", "/timings?handler=foo", 3, 7},
		{"limited", "/timings?handler=foo&limit=2", 2, 7},
		{"unknown handler", "/timings?handler=nope", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(h, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}

			var body TimingsResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Count != tt.wantCount || len(body.Timings) != tt.wantCount {
				t.Fatalf("count = %d (%d timings), want %d", body.Count, len(body.Timings), tt.wantCount)
			}
			if tt.wantCount > 0 && body.Timings[0].DurationMs != tt.wantFirst {
				t.Errorf("newest duration = %d, want %d", body.Timings[0].DurationMs, tt.wantFirst)
			}
		})
	}
}

func TestTimings_EmptyListIsArray(t *testing.T) {
	setupTestDeps(t, &deps.Deps{Store: memory.New(0)})
	rec := get(newHandler(t, nil), "/timings")

	if !strings.Contains(rec.Body.String(), `"timings":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestTimings_InvalidLimit(t *testing.T) {
	setupTestDeps(t, &deps.Deps{Store: memory.New(0)})
	h := newHandler(t, nil)

	for _, limit := range []string{"abc", "0", "-3"} {
		t.Run(limit, func(t *testing.T) {
			rec := get(h, "/timings?limit="+limit)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"reason_code":"invalid_field"`) {
				t.Errorf("unexpected body: %s", rec.Body.String())
			}
		})
	}
}

func TestTimings_StoreUnavailable(t *testing.T) {
	closed := memory.New(0)
	_ = closed.Close()

	tests := []struct {
		name string
		st   store.TimingStore
	}{
		{"not configured", nil},
		{"closed", closed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestDeps(t, &deps.Deps{Store: tt.st})
			rec := get(newHandler(t, nil), "/timings")

			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"reason_code":"store_unavailable"`) {
				t.Errorf("unexpected body: %s", rec.Body.String())
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "handlerchain_test_hits_total", Help: "test"})
	reg.MustRegister(hits)
	hits.Add(3)

	setupTestDeps(t, &deps.Deps{Metrics: reg})
	rec := get(newHandler(t, nil), "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "handlerchain_test_hits_total 3") {
		t.Errorf("expected registry contents, got:\n%s", rec.Body.String())
	}
}

func TestMetrics_Disabled(t *testing.T) {
	setupTestDeps(t, &deps.Deps{Metrics: prometheus.NewRegistry()})
	rec := get(newHandler(t, map[string]any{"metrics": false}), "/metrics")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
