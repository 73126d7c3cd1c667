package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
)

// postgresDialect maps the shared queries onto PostgreSQL. Blobs go
// in uncompressed; TOAST already compresses large BYTEA values.
type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

// Rebind rewrites ?-style placeholders as $1..$n. None of the store's
// queries contain a literal question mark.
func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) EncodeBlob(data []byte) []byte { return data }

func (postgresDialect) DecodeBlob(data []byte) ([]byte, error) { return data, nil }

func (postgresDialect) Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS product (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			metadata_schema TEXT NOT NULL,
			grid_spec TEXT NOT NULL,
			added_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dataset (
			id TEXT PRIMARY KEY,
			product_ref INTEGER NOT NULL REFERENCES product(id),
			time_begin TIMESTAMPTZ,
			time_end TIMESTAMPTZ,
			document BYTEA NOT NULL,
			added TIMESTAMPTZ NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dataset_product ON dataset(product_ref)`,
		`CREATE TABLE IF NOT EXISTS dataset_spatial (
			id TEXT PRIMARY KEY,
			product_ref INTEGER NOT NULL REFERENCES product(id),
			center_time TIMESTAMPTZ NOT NULL,
			creation_time TIMESTAMPTZ NOT NULL,
			footprint BYTEA,
			srid INTEGER NOT NULL DEFAULT 0,
			grid_x SMALLINT,
			grid_y SMALLINT,
			size_bytes BIGINT
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
			time_begin TIMESTAMPTZ,
			time_end TIMESTAMPTZ,
			footprint BYTEA,
			footprint_crs TEXT NOT NULL DEFAULT '',
			footprint_count INTEGER NOT NULL DEFAULT 0,
			newest_creation TIMESTAMPTZ,
			crses TEXT NOT NULL,
			size_bytes BIGINT,
			generation_time TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (product_ref, period_type, start_day)
		)`,
	}
}

// OpenPostgres opens a PostgreSQL-backed store using a lib/pq
// connection string or URL.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return newStore(ctx, db, postgresDialect{}, logger)
}
