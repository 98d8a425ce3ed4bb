// Package chain implements an ordered interceptor pipeline around a handler.
//
// Each entry has a pre-hook, which may veto the dispatch, and a post-hook.
// Pre-hooks run in registration order until one stops the chain. The handler
// runs only if none did. Post-hooks then run in reverse order for every entry
// whose pre-hook executed, including the one that stopped the chain.
package chain

import (
	"errors"
	"fmt"
	"sync"
)

// PreHook runs before the handler. Returning false stops the chain.
type PreHook func(x *Exchange, handler string) (bool, error)

// PostHook runs after the handler, or after a pre-hook stopped the chain.
// resp is nil when no response was produced.
type PostHook func(x *Exchange, handler string, resp *Response) error

// HandlerFunc invokes the wrapped unit of work.
type HandlerFunc func(x *Exchange) (*Response, error)

// Entry is one interceptor in a chain. A nil Pre continues; a nil Post is skipped.
type Entry struct {
	Name string
	Pre  PreHook
	Post PostHook
}

// Chain is an ordered list of entries. Dispatch may be called concurrently.
type Chain struct {
	mu      sync.RWMutex
	entries []Entry
}

// New returns a chain holding entries in the given order.
func New(entries ...Entry) *Chain {
	c := &Chain{}
	for _, e := range entries {
		c.Register(e)
	}
	return c
}

// Register appends an entry. Order of registration is the order of pre-hooks.
func (c *Chain) Register(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// Len returns the number of registered entries.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Names returns entry names in registration order.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

func (c *Chain) snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[:len(c.entries):len(c.entries)]
}

// Dispatch runs the chain around invoke for the named handler.
//
// A pre-hook error aborts immediately: no handler, no post-hooks. A handler
// error does not skip post-hooks; it is returned once they have run. A
// post-hook error aborts the remaining post-hooks and is returned joined
// with the handler error, if any.
func (c *Chain) Dispatch(x *Exchange, handler string, invoke HandlerFunc) (*Response, error) {
	entries := c.snapshot()

	entered := 0
	for _, e := range entries {
		entered++
		if e.Pre == nil {
			continue
		}
		proceed, err := e.Pre(x, handler)
		if err != nil {
			return nil, fmt.Errorf("interceptor %q pre-handle %s: %w", e.Name, handler, err)
		}
		if !proceed {
			x.stopped, x.stoppedBy = true, e.Name
			break
		}
	}

	var resp *Response
	if !x.stopped {
		resp, x.err = invoke(x)
	} else {
		resp = x.resp
	}

	for i := entered - 1; i >= 0; i-- {
		e := entries[i]
		if e.Post == nil {
			continue
		}
		if err := e.Post(x, handler, resp); err != nil {
			return nil, errors.Join(x.err, fmt.Errorf("interceptor %q post-handle %s: %w", e.Name, handler, err))
		}
	}

	if x.err != nil {
		return resp, x.err
	}
	return resp, nil
}
