package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jose/handlerchain/internal/platform/http/realip"
)

type logRecord struct {
	message string
	attrs   map[string]any
}

// logRecorder is a slog.Handler that keeps every record, including the
// attributes inherited through Logger.With.
type logRecorder struct {
	mu      *sync.Mutex
	records *[]logRecord
	with    []slog.Attr
	level   slog.Level
}

func newLogRecorder(level slog.Level) *logRecorder {
	return &logRecorder{mu: &sync.Mutex{}, records: &[]logRecord{}, level: level}
}

func (r *logRecorder) Enabled(_ context.Context, level slog.Level) bool { return level >= r.level }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, len(r.with)+rec.NumAttrs())
	for _, a := range r.with {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, logRecord{message: rec.Message, attrs: attrs})
	return nil
}

func (r *logRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *r
	cp.with = append(append([]slog.Attr{}, r.with...), attrs...)
	return &cp
}

func (r *logRecorder) WithGroup(string) slog.Handler { return r }

func (r *logRecorder) getRecords() []logRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logRecord(nil), *r.records...)
}

// requestRecord returns the single access log line.
func requestRecord(t *testing.T, rec *logRecorder) logRecord {
	t.Helper()
	var found []logRecord
	for _, r := range rec.getRecords() {
		if r.message == "request" {
			found = append(found, r)
		}
	}
	if len(found) != 1 {
		t.Fatalf("expected one request record, got %d", len(found))
	}
	return found[0]
}

// newRouter wires the middleware the way the server does and mounts a
// service-like subrouter under /app.
func newRouter(base, fallback *slog.Logger, tp *realip.TrustedProxies) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLoggerMiddleware(base, tp))
	r.Use(AccessLogMiddleware(fallback, tp))
	r.Use(chimw.Recoverer)

	app := chi.NewRouter()
	app.Get("/{handler}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "handler") == "boom" {
			panic("handler failed")
		}
		_, _ = w.Write([]byte("handler " + chi.URLParam(r, "handler")))
	})
	r.Mount("/app", app)
	return r
}

func TestAccessLogMiddleware_LogsThroughRequestLogger(t *testing.T) {
	base := newLogRecorder(slog.LevelInfo)
	fallback := newLogRecorder(slog.LevelInfo)
	tp := realip.NewTrustedProxies([]string{"10.0.0.0/8"})
	r := newRouter(slog.New(base), slog.New(fallback), tp)

	req := httptest.NewRequest(http.MethodGet, "/app/foo", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	rec := requestRecord(t, base)
	want := map[string]any{
		"method":    http.MethodGet,
		"path":      "/app/foo",
		"client_ip": "203.0.113.9",
		"route":     "/app/{handler}",
		"status":    int64(http.StatusOK),
		"bytes":     int64(len("handler foo")),
	}
	for k, v := range want {
		if rec.attrs[k] != v {
			t.Errorf("%s = %v (%T), want %v", k, rec.attrs[k], rec.attrs[k], v)
		}
	}
	if id, _ := rec.attrs["request_id"].(string); id == "" {
		t.Error("expected request_id inherited from the request logger")
	}
	if _, ok := rec.attrs["duration_ms"]; !ok {
		t.Error("expected duration_ms")
	}
	if n := len(fallback.getRecords()); n != 0 {
		t.Errorf("fallback logger used %d times with a request logger present", n)
	}
}

func TestAccessLogMiddleware_RouteOmittedWhenUnmatched(t *testing.T) {
	base := newLogRecorder(slog.LevelInfo)
	r := newRouter(slog.New(base), slog.New(base), nil)

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	rec := requestRecord(t, base)
	if rr.Code != http.StatusNotFound || rec.attrs["status"] != int64(http.StatusNotFound) {
		t.Errorf("status = %d, logged %v; want 404", rr.Code, rec.attrs["status"])
	}
	if route, ok := rec.attrs["route"]; ok {
		t.Errorf("unexpected route %v for an unmatched path", route)
	}
}

func TestAccessLogMiddleware_FallbackWithoutRequestLogger(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		wantIP     string
	}{
		{"host and port", "192.0.2.10:5555", "192.0.2.10"},
		{"bare address", "192.0.2.11", "192.0.2.11"},
		{"unparseable", "not-an-address", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := newLogRecorder(slog.LevelInfo)
			// nil TrustedProxies: forwarding headers are never honored.
			h := AccessLogMiddleware(slog.New(fallback), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/timings", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set("X-Forwarded-For", "203.0.113.9")
			h.ServeHTTP(httptest.NewRecorder(), req)

			rec := requestRecord(t, fallback)
			if rec.attrs["client_ip"] != tt.wantIP {
				t.Errorf("client_ip = %v, want %s", rec.attrs["client_ip"], tt.wantIP)
			}
			if rec.attrs["method"] != http.MethodPost || rec.attrs["path"] != "/api/timings" {
				t.Errorf("method/path = %v %v", rec.attrs["method"], rec.attrs["path"])
			}
			if rec.attrs["status"] != int64(http.StatusAccepted) {
				t.Errorf("status = %v, want 202", rec.attrs["status"])
			}
		})
	}
}

func TestAccessLogMiddleware_RecoveredPanicLogs500(t *testing.T) {
	base := newLogRecorder(slog.LevelInfo)
	r := newRouter(slog.New(base), slog.New(base), nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app/boom", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	rec := requestRecord(t, base)
	if rec.attrs["status"] != int64(http.StatusInternalServerError) {
		t.Errorf("status = %v, want 500", rec.attrs["status"])
	}
	if rec.attrs["route"] != "/app/{handler}" {
		t.Errorf("route = %v", rec.attrs["route"])
	}
}
