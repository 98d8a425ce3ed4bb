package httpwrap

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jose/handlerchain/internal/chain"
	"github.com/jose/handlerchain/internal/components/api"
	"github.com/jose/handlerchain/internal/platform/appctx"
	"github.com/jose/handlerchain/internal/platform/logutil"
)

// Exchange attributes set by Intercept before the chain runs.
const (
	AttrRequest    = "http.request"
	AttrDispatchID = "dispatch.id"
)

// Intercept adapts a named handler to net/http, running it through c.
// A nil chain invokes the handler directly; services use that for handlers
// excluded from interception.
func Intercept(c *chain.Chain, name string, h chain.HandlerFunc, log *slog.Logger) http.Handler {
	log = logutil.NoopIfNil(log)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		x := chain.NewExchange(r.Context())
		x.Set(AttrRequest, r)
		x.Set(AttrDispatchID, id)

		var (
			resp *chain.Response
			err  error
		)
		if c == nil {
			resp, err = h(x)
		} else {
			resp, err = c.Dispatch(x, name, h)
		}

		reqLog := log
		if l, ok := appctx.LoggerFromContext(r.Context()); ok {
			reqLog = l
		}

		if err != nil {
			reqLog.Error("dispatch failed", "handler", name, "dispatch_id", id, "error", err)
			api.WriteInternalError(w, "internal error")
			return
		}
		if x.Stopped() {
			reqLog.Debug("dispatch short-circuited", "handler", name, "dispatch_id", id, "stopped_by", x.StoppedBy())
		}

		WriteResponse(w, resp)
	})
}

// WriteResponse copies a chain response onto w. A nil response is an empty 200.
func WriteResponse(w http.ResponseWriter, resp *chain.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// Request returns the *http.Request stored by Intercept.
func Request(x *chain.Exchange) (*http.Request, error) {
	return chain.Value[*http.Request](x, AttrRequest)
}

// DispatchID returns the per-dispatch id stored by Intercept.
func DispatchID(x *chain.Exchange) string {
	id, _ := chain.Value[string](x, AttrDispatchID)
	return id
}
