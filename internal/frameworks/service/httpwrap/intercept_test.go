package httpwrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jose/handlerchain/internal/chain"
	"github.com/jose/handlerchain/internal/platform/appctx"
)

func okHandler(x *chain.Exchange) (*chain.Response, error) {
	h := make(http.Header)
	h.Set("X-Handler", "ok")
	return &chain.Response{Status: http.StatusOK, Header: h, Body: []byte("hello")}, nil
}

func TestIntercept_SetsAttributes(t *testing.T) {
	var gotReq *http.Request
	var gotID string

	c := chain.New(chain.Entry{
		Name: "probe",
		Pre: func(x *chain.Exchange, handler string) (bool, error) {
			r, err := Request(x)
			if err != nil {
				return false, err
			}
			gotReq = r
			gotID = DispatchID(x)
			return true, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/app/foo", nil)
	w := httptest.NewRecorder()
	Intercept(c, "foo", okHandler, nil).ServeHTTP(w, req)

	if gotReq != req {
		t.Error("pre-hook did not see the incoming request")
	}
	if _, err := uuid.Parse(gotID); err != nil {
		t.Errorf("dispatch id %q is not a UUID: %v", gotID, err)
	}
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Errorf("got %d %q, want 200 hello", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Handler") != "ok" {
		t.Error("handler headers were not copied")
	}
}

func TestIntercept_NilChainInvokesDirectly(t *testing.T) {
	w := httptest.NewRecorder()
	Intercept(nil, "baz", okHandler, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/baz", nil))

	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Errorf("got %d %q, want 200 hello", w.Code, w.Body.String())
	}
}

func TestIntercept_ShortCircuitWithoutResponseIsEmpty200(t *testing.T) {
	c := chain.New(chain.Entry{
		Name: "silent",
		Pre:  func(x *chain.Exchange, handler string) (bool, error) { return false, nil },
	})

	w := httptest.NewRecorder()
	Intercept(c, "foo", func(x *chain.Exchange) (*chain.Response, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/foo", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestIntercept_ShortCircuitResponse(t *testing.T) {
	c := chain.New(chain.Entry{
		Name: "guard",
		Pre: func(x *chain.Exchange, handler string) (bool, error) {
			x.Respond(&chain.Response{Status: http.StatusUnauthorized, Body: []byte("no")})
			return false, nil
		},
	})

	w := httptest.NewRecorder()
	Intercept(c, "bar", okHandler, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/bar", nil))

	if w.Code != http.StatusUnauthorized || w.Body.String() != "no" {
		t.Errorf("got %d %q, want 401 no", w.Code, w.Body.String())
	}
}

func TestIntercept_ErrorIs500AndLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	c := chain.New(chain.Entry{
		Name: "broken",
		Post: func(x *chain.Exchange, handler string, resp *chain.Response) error {
			_, err := chain.Value[string](x, "never.set")
			return err
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/app/foo", nil)
	req = req.WithContext(appctx.WithLogger(context.Background(), logger))
	w := httptest.NewRecorder()
	Intercept(c, "foo", okHandler, nil).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal_error") {
		t.Errorf("body should carry the error envelope: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), "dispatch failed") || !strings.Contains(buf.String(), "never.set") {
		t.Errorf("expected error log naming the attribute, got: %s", buf.String())
	}
}

func TestIntercept_HandlerError(t *testing.T) {
	w := httptest.NewRecorder()
	Intercept(chain.New(), "foo", func(x *chain.Exchange) (*chain.Response, error) {
		return nil, errors.New("boom")
	}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/foo", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("handler error text must not leak to the client")
	}
}

func TestWriteResponse_ZeroStatusDefaultsTo200(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResponse(w, &chain.Response{Body: []byte("x")})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestClearRawPath(t *testing.T) {
	var raw string
	h := ClearRawPath(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw = r.URL.RawPath
	}))

	req := httptest.NewRequest(http.MethodGet, "/app/a%2Fb", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if raw != "" {
		t.Errorf("RawPath = %q, want empty", raw)
	}
}
