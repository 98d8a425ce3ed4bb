package app

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

	_ "github.com/jose/handlerchain/internal/interceptors/loader"
	memcache "github.com/jose/handlerchain/internal/platform/cache/memory"
	"github.com/jose/handlerchain/internal/platform/config"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestDeps installs a config whose loadingtime profiles never sleep.
func setupTestDeps(t *testing.T) *memory.Driver {
	t.Helper()

	cfg := config.DevConfig()
	cfg.HTTP.Interceptors["loadingtime"] = map[string]any{
		"profiles": map[string]any{
			"fast":     map[string]any{"max_delay_ms": 0},
			"blockbar": map[string]any{"max_delay_ms": 0, "block_handlers": []any{"bar"}},
		},
	}

	st := memory.New(0)
	deps.ResetDeps()
	deps.SetDeps(&deps.Deps{Config: cfg, Store: st})
	t.Cleanup(deps.ResetDeps)
	return st
}

func newService(t *testing.T, conf map[string]any) *Service {
	t.Helper()
	svc, err := New(conf, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc.(*Service)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func bindings(b ...map[string]any) []any {
	out := make([]any, len(b))
	for i := range b {
		out[i] = b[i]
	}
	return out
}

func TestNew_FailsWithoutSharedDeps(t *testing.T) {
	deps.ResetDeps()
	if _, err := New(map[string]any{}, quietLogger()); err == nil {
		t.Error("expected error when SharedDeps not initialized")
	}
}

func TestNew_UnknownInterceptorFails(t *testing.T) {
	setupTestDeps(t)

	_, err := New(map[string]any{
		"interceptors": bindings(map[string]any{"name": "nope"}),
	}, quietLogger())
	if err == nil || !strings.Contains(err.Error(), `"nope"`) {
		t.Fatalf("expected unknown interceptor error, got %v", err)
	}
}

func TestService_Prefix(t *testing.T) {
	setupTestDeps(t)
	if got := newService(t, nil).Prefix(); got != "app" {
		t.Errorf("expected prefix 'app', got %q", got)
	}
}

func TestHandlers_ReturnMessage(t *testing.T) {
	setupTestDeps(t)
	svc := newService(t, nil)
	fixed := time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	for _, name := range Handlers {
		t.Run(name, func(t *testing.T) {
			rec := get(t, svc.Handler(), "/"+name)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var msg Message
			if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if want := "handler " + name + " of the controller"; msg.Message != want {
				t.Errorf("message = %q, want %q", msg.Message, want)
			}
			if want := "Tue Mar 05 10:20:30 UTC 2024"; msg.Date != want {
				t.Errorf("date = %q, want %q", msg.Date, want)
			}
		})
	}
}

func TestHandlers_MethodNotAllowed(t *testing.T) {
	setupTestDeps(t)
	svc := newService(t, nil)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/foo", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestChain_BlocksAndExcludes(t *testing.T) {
	st := setupTestDeps(t)
	svc := newService(t, map[string]any{
		"interceptors":     bindings(map[string]any{"name": "loadingtime", "profile": "blockbar"}),
		"exclude_handlers": []any{"baz"},
	})

	tests := []struct {
		handler    string
		wantStatus int
		wantBody   string
	}{
		{"foo", http.StatusOK, "handler foo of the controller"},
		{"bar", http.StatusUnauthorized, "Could not load bar"},
		{"baz", http.StatusOK, "handler baz of the controller"},
	}
	for _, tt := range tests {
		t.Run(tt.handler, func(t *testing.T) {
			rec := get(t, svc.Handler(), "/"+tt.handler)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	ctx := context.Background()
	for handler, want := range map[string]int{"foo": 1, "bar": 1, "baz": 0} {
		got, err := st.ListTimings(ctx, handler, 10)
		if err != nil {
			t.Fatalf("ListTimings(%s) error = %v", handler, err)
		}
		if len(got) != want {
			t.Errorf("timings for %s = %d, want %d", handler, len(got), want)
		}
	}

	bar, _ := st.ListTimings(ctx, "bar", 10)
	if len(bar) == 1 && (!bar[0].Blocked || bar[0].Interceptor != "LoadingTimeInterceptor") {
		t.Errorf("bar timing = %+v, want blocked by LoadingTimeInterceptor", bar[0])
	}
}

func TestChain_RateLimitRequiresCache(t *testing.T) {
	setupTestDeps(t)
	deps.GetDeps().Config.HTTP.Interceptors["ratelimit"] = map[string]any{
		"profiles": map[string]any{"one": map[string]any{"requests_per_window": 1}},
	}

	_, err := New(map[string]any{
		"interceptors": bindings(map[string]any{"name": "ratelimit", "profile": "one"}),
	}, quietLogger())
	if err == nil {
		t.Fatal("expected error building ratelimit without a cache")
	}
}

func TestChain_RateLimitStopsBeforeLoadingTime(t *testing.T) {
	st := setupTestDeps(t)
	d := deps.GetDeps()
	d.Config.HTTP.Interceptors["ratelimit"] = map[string]any{
		"profiles": map[string]any{"one": map[string]any{"requests_per_window": 1, "window_seconds": 60}},
	}
	c := memcache.New(time.Minute, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	d.Cache = c

	svc := newService(t, map[string]any{
		"interceptors": bindings(
			map[string]any{"name": "ratelimit", "profile": "one"},
			map[string]any{"name": "loadingtime", "profile": "fast"},
		),
	})

	if rec := get(t, svc.Handler(), "/foo"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}
	rec := get(t, svc.Handler(), "/foo")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// loadingtime never saw the rejected request.
	got, _ := st.ListTimings(context.Background(), "foo", 10)
	if len(got) != 1 {
		t.Errorf("timings for foo = %d, want 1", len(got))
	}
}
