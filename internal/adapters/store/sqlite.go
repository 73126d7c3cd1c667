package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteDialect keeps everything in one file-backed database. Blobs
// are snappy-compressed: metadata documents and WKB footprints are
// highly repetitive, and SQLite stores them inline with the row.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) EncodeBlob(data []byte) []byte {
	return snappy.Encode(nil, data)
}

func (sqliteDialect) DecodeBlob(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompressing blob: %w", err)
	}
	return out, nil
}

func (sqliteDialect) Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS product (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			metadata_schema TEXT NOT NULL,
			grid_spec TEXT NOT NULL,
			added_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dataset (
			id TEXT PRIMARY KEY,
			product_ref INTEGER NOT NULL REFERENCES product(id),
			time_begin TIMESTAMP,
			time_end TIMESTAMP,
			document BLOB NOT NULL,
			added TIMESTAMP NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dataset_product ON dataset(product_ref)`,
		`CREATE TABLE IF NOT EXISTS dataset_spatial (
			id TEXT PRIMARY KEY,
			product_ref INTEGER NOT NULL REFERENCES product(id),
			center_time TIMESTAMP NOT NULL,
			creation_time TIMESTAMP NOT NULL,
			footprint BLOB,
			srid INTEGER NOT NULL DEFAULT 0,
			grid_x INTEGER,
			grid_y INTEGER,
			size_bytes INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spatial_product_time
			ON dataset_spatial(product_ref, center_time)`,
		`CREATE TABLE IF NOT EXISTS time_overview (
			product_ref INTEGER NOT NULL REFERENCES product(id),
			period_type TEXT NOT NULL,
			start_day TEXT NOT NULL,
			dataset_count INTEGER NOT NULL,
			timeline_period TEXT NOT NULL,
			timeline_counts TEXT NOT NULL,
			region_counts TEXT NOT NULL,
			time_begin TIMESTAMP,
			time_end TIMESTAMP,
			footprint BLOB,
			footprint_crs TEXT NOT NULL DEFAULT '',
			footprint_count INTEGER NOT NULL DEFAULT 0,
			newest_creation TIMESTAMP,
			crses TEXT NOT NULL,
			size_bytes INTEGER,
			generation_time TIMESTAMP NOT NULL,
			PRIMARY KEY (product_ref, period_type, start_day)
		)`,
	}
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at the
// given path. The special path ":memory:" opens an ephemeral store,
// pinned to a single connection so all callers see the same database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening sqlite store %s: %w", path, err)
	}
	return newStore(ctx, db, sqliteDialect{}, logger.With("path", path))
}
