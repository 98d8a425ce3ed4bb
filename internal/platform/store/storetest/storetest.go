// Package storetest runs a shared conformance suite against store drivers.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jose/handlerchain/internal/platform/store"
)

// NewTiming returns a sample for handler created at base+offset.
func NewTiming(handler string, base time.Time, offset time.Duration) *store.Timing {
	return &store.Timing{
		Handler:     handler,
		Interceptor: "LoadingTimeInterceptor",
		DispatchID:  fmt.Sprintf("dispatch-%s-%d", handler, offset),
		DurationMs:  int64(offset / time.Millisecond),
		CreatedAt:   base.Add(offset),
	}
}

// RunDriverTests exercises a freshly created, uninitialised driver.
func RunDriverTests(t *testing.T, cfg *store.DriverConfig) {
	t.Helper()
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("store.New(%s) failed: %v", cfg.Driver, err)
	}
	if driver.Name() != cfg.Driver {
		t.Errorf("Name() = %q, want %q", driver.Name(), cfg.Driver)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer driver.Close()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("RecordFillsDefaults", func(t *testing.T) {
		tm := &store.Timing{Handler: "defaults", DurationMs: 7}
		if err := driver.RecordTiming(ctx, tm); err != nil {
			t.Fatalf("RecordTiming failed: %v", err)
		}
		if tm.ID == "" {
			t.Error("expected ID to be assigned")
		}
		if tm.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be assigned")
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		for i := range 3 {
			if err := driver.RecordTiming(ctx, NewTiming("foo", base, time.Duration(i)*time.Second)); err != nil {
				t.Fatalf("RecordTiming failed: %v", err)
			}
		}
		if err := driver.RecordTiming(ctx, NewTiming("bar", base, 10*time.Second)); err != nil {
			t.Fatalf("RecordTiming failed: %v", err)
		}

		got, err := driver.ListTimings(ctx, "foo", 0)
		if err != nil {
			t.Fatalf("ListTimings failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].CreatedAt.After(got[i-1].CreatedAt) {
				t.Errorf("timings not newest first: %v before %v", got[i-1].CreatedAt, got[i].CreatedAt)
			}
		}
		for _, tm := range got {
			if tm.Handler != "foo" {
				t.Errorf("handler filter leaked %q", tm.Handler)
			}
		}
		if got[0].DurationMs != 2000 || got[0].Interceptor != "LoadingTimeInterceptor" {
			t.Errorf("unexpected newest sample: %+v", got[0])
		}
	})

	t.Run("ListAllHandlersWithLimit", func(t *testing.T) {
		got, err := driver.ListTimings(ctx, "", 2)
		if err != nil {
			t.Fatalf("ListTimings failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
	})

	t.Run("ListUnknownHandlerIsEmpty", func(t *testing.T) {
		got, err := driver.ListTimings(ctx, "nope", 10)
		if err != nil {
			t.Fatalf("ListTimings failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("len = %d, want 0", len(got))
		}
	})

	t.Run("BlockedFlagRoundTrips", func(t *testing.T) {
		tm := NewTiming("blocked", base, time.Hour)
		tm.Blocked = true
		if err := driver.RecordTiming(ctx, tm); err != nil {
			t.Fatalf("RecordTiming failed: %v", err)
		}
		got, err := driver.ListTimings(ctx, "blocked", 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("ListTimings = %v, %v", got, err)
		}
		if !got[0].Blocked || got[0].ID != tm.ID || got[0].DispatchID != tm.DispatchID {
			t.Errorf("got %+v, want %+v", got[0], tm)
		}
	})

	t.Run("ClosedDriverFails", func(t *testing.T) {
		other, err := store.New(cfg)
		if err != nil {
			t.Fatalf("store.New failed: %v", err)
		}
		if err := other.Init(ctx); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		other.Close()

		if err := other.RecordTiming(ctx, &store.Timing{Handler: "x"}); !errors.Is(err, store.ErrClosed) {
			t.Errorf("RecordTiming after Close: got %v, want ErrClosed", err)
		}
	})
}
