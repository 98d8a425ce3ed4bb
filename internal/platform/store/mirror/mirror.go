// Package mirror implements a SQLite + JSON mirror timing store.
// SQLite is the source of truth; the JSON file is a one-way export of the
// newest timings for operators. The program never reads it back.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/jose/handlerchain/internal/platform/store"
	"github.com/jose/handlerchain/internal/platform/store/sqlite"
)

// ExportFile is the export file name inside <data_dir>/mirror.
const ExportFile = "timings.json"

func init() {
	store.Register("mirror", NewDriver)
}

// Driver records into SQLite and rewrites the export after every write.
type Driver struct {
	dataDir string
	limit   int
	db      store.Driver
	mu      sync.Mutex // serialises exports
}

// Export is the document written to ExportFile.
type Export struct {
	Count   int             `json:"count"`
	Timings []*store.Timing `json:"timings"`
}

// NewDriver creates a new mirror driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for mirror driver")
	}
	db, err := sqlite.NewDriver(cfg)
	if err != nil {
		return nil, err
	}
	return &Driver{
		dataDir: cfg.DataDir,
		limit:   store.ClampLimit(cfg.Mirror.ExportLimit),
		db:      db,
	}, nil
}

func (d *Driver) Name() string { return "mirror" }

// ExportPath returns where the JSON export is written.
func (d *Driver) ExportPath() string {
	return filepath.Join(d.dataDir, "mirror", ExportFile)
}

// Init opens the database and writes the initial export.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.ExportPath()), 0o700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}
	if err := d.db.Init(ctx); err != nil {
		return err
	}
	if err := d.export(ctx); err != nil {
		return fmt.Errorf("failed to export mirror: %w", err)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.db.Close()
}

// RecordTiming stores t in SQLite, then refreshes the export.
func (d *Driver) RecordTiming(ctx context.Context, t *store.Timing) error {
	if err := d.db.RecordTiming(ctx, t); err != nil {
		return err
	}
	return d.export(ctx)
}

func (d *Driver) ListTimings(ctx context.Context, handler string, limit int) ([]*store.Timing, error) {
	return d.db.ListTimings(ctx, handler, limit)
}

func (d *Driver) export(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	timings, err := d.db.ListTimings(ctx, "", d.limit)
	if err != nil {
		return err
	}
	if timings == nil {
		timings = []*store.Timing{}
	}
	return writeJSON(d.ExportPath(), Export{Count: len(timings), Timings: timings})
}

// writeJSON atomically replaces path with the indented encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v, jsontext.WithIndent("  "))
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

var _ store.Driver = (*Driver)(nil)
