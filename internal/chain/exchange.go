package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingAttribute = errors.New("attribute not set")
	ErrAttributeType    = errors.New("attribute has unexpected type")
)

// Response is what a dispatch produces: either the handler's result or the
// short-circuit response written by the interceptor that stopped the chain.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Exchange carries per-request state through every phase of a dispatch.
// It is owned by a single request and must not be shared between requests.
type Exchange struct {
	ctx       context.Context
	attrs     map[string]any
	resp      *Response
	stopped   bool
	stoppedBy string
	err       error
}

// NewExchange creates an empty exchange bound to ctx.
func NewExchange(ctx context.Context) *Exchange {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Exchange{
		ctx:   ctx,
		attrs: make(map[string]any),
	}
}

// Context returns the request context.
func (x *Exchange) Context() context.Context { return x.ctx }

// Set stores an attribute, replacing any previous value for key.
func (x *Exchange) Set(key string, value any) {
	x.attrs[key] = value
}

// Get returns the attribute stored under key.
func (x *Exchange) Get(key string) (any, bool) {
	v, ok := x.attrs[key]
	return v, ok
}

// Respond records the response a pre-hook wants sent when it stops the chain.
func (x *Exchange) Respond(resp *Response) {
	x.resp = resp
}

// Response returns the short-circuit response, or nil.
func (x *Exchange) Response() *Response { return x.resp }

// Stopped reports whether a pre-hook stopped the chain before the handler.
func (x *Exchange) Stopped() bool { return x.stopped }

// StoppedBy returns the name of the entry whose pre-hook stopped the chain.
// Empty when the chain ran through to the handler.
func (x *Exchange) StoppedBy() string { return x.stoppedBy }

// Err returns the error the handler returned, if it ran and failed.
func (x *Exchange) Err() error { return x.err }

// Value returns the attribute stored under key as a T.
// A missing key or a value of another type is a contract violation between
// hooks, so both are reported as errors naming the key.
func Value[T any](x *Exchange, key string) (T, error) {
	var zero T
	raw, ok := x.attrs[key]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrMissingAttribute, key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T, want %T", ErrAttributeType, key, raw, zero)
	}
	return v, nil
}
