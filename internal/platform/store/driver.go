// Package store persists handler timing samples recorded by interceptors.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// List limits applied by ListTimings.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Driver is a persistence backend. Implementations must be safe for
// concurrent use.
type Driver interface {
	// Init prepares the backend (open files, migrate tables).
	Init(ctx context.Context) error

	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string

	TimingStore
}

// TimingStore records and lists handler timings.
type TimingStore interface {
	// RecordTiming stores t, filling ID and CreatedAt when empty.
	RecordTiming(ctx context.Context, t *Timing) error

	// ListTimings returns the newest timings first. An empty handler lists
	// all handlers. limit is clamped with ClampLimit.
	ListTimings(ctx context.Context, handler string, limit int) ([]*Timing, error)
}

// Timing is one measured dispatch of a handler.
type Timing struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Handler     string    `json:"handler" gorm:"index"`
	Interceptor string    `json:"interceptor"`
	DispatchID  string    `json:"dispatch_id"`
	DurationMs  int64     `json:"duration_ms"`
	Blocked     bool      `json:"blocked"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// ApplyDefaults assigns a UUID and the current time when unset.
func (t *Timing) ApplyDefaults() {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}

// ClampLimit maps a requested list size onto [1, MaxListLimit], using
// DefaultListLimit for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
