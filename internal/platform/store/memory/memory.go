// Package memory implements an in-process timing store. Data is lost on
// restart; it is the dev mode default.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jose/handlerchain/internal/platform/store"
)

func init() {
	store.Register("memory", func(cfg *store.DriverConfig) (store.Driver, error) {
		return New(DefaultMaxEntries), nil
	})
}

// DefaultMaxEntries bounds the samples kept in memory.
const DefaultMaxEntries = 10000

// Driver keeps timings in insertion order and drops the oldest beyond max.
type Driver struct {
	mu      sync.RWMutex
	timings []*store.Timing
	max     int
	closed  bool
}

// New creates a memory driver holding at most max samples.
func New(max int) *Driver {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Driver{max: max}
}

func (d *Driver) Name() string                   { return "memory" }
func (d *Driver) Init(ctx context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) RecordTiming(ctx context.Context, t *store.Timing) error {
	t.ApplyDefaults()
	cp := *t

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	d.timings = append(d.timings, &cp)
	if over := len(d.timings) - d.max; over > 0 {
		d.timings = slices.Delete(d.timings, 0, over)
	}
	return nil
}

func (d *Driver) ListTimings(ctx context.Context, handler string, limit int) ([]*store.Timing, error) {
	limit = store.ClampLimit(limit)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	out := make([]*store.Timing, 0, min(limit, len(d.timings)))
	for i := len(d.timings) - 1; i >= 0 && len(out) < limit; i-- {
		t := d.timings[i]
		if handler != "" && t.Handler != handler {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

var _ store.Driver = (*Driver)(nil)
