// Package sqlite implements the timing store on SQLite via GORM.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jose/handlerchain/internal/platform/store"
)

// DBFile is the database file name inside the data directory.
const DBFile = "handlerchain.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Driver using SQLite.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return &Driver{dataDir: cfg.DataDir}, nil
}

func (d *Driver) Name() string { return "sqlite" }

// Init creates the data directory, opens the database and migrates.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(d.dataDir, DBFile)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&store.Timing{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	d.db = db
	return nil
}

func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	d.db = nil
	return sqlDB.Close()
}

func (d *Driver) RecordTiming(ctx context.Context, t *store.Timing) error {
	if d.db == nil {
		return store.ErrClosed
	}
	t.ApplyDefaults()
	return d.db.WithContext(ctx).Create(t).Error
}

func (d *Driver) ListTimings(ctx context.Context, handler string, limit int) ([]*store.Timing, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}

	q := d.db.WithContext(ctx).Order("created_at desc").Limit(store.ClampLimit(limit))
	if handler != "" {
		q = q.Where("handler = ?", handler)
	}

	var timings []*store.Timing
	if err := q.Find(&timings).Error; err != nil {
		return nil, err
	}
	return timings, nil
}

var _ store.Driver = (*Driver)(nil)
