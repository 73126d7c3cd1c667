// Package spatialite provides the computational geometry engine backed
// by an in-memory SQLite database with the SpatiaLite extension loaded.
// All operations round-trip geometries as WKB; the engine holds no
// geometry state between calls.
package spatialite

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/terradex/strata/internal/domain"
)

// Ensure sqlite3 driver is registered with extension support.
func init() {
	sql.Register("sqlite3_spatialite", &sqlite3.SQLiteDriver{
		Extensions: spatialiteLibraryPaths(),
	})
}

// spatialiteLibraryPaths returns candidate paths for the SpatiaLite
// module. The environment variable wins; platform paths follow, most
// specific first.
func spatialiteLibraryPaths() []string {
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return []string{envPath}
	}

	return []string{
		// Alpine Linux (Docker containers)
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",

		// Debian/Ubuntu amd64
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so.8",

		// Debian/Ubuntu arm64
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so.8",

		// macOS Homebrew (Intel)
		"/usr/local/lib/mod_spatialite.dylib",

		// macOS Homebrew (Apple Silicon)
		"/opt/homebrew/lib/mod_spatialite.dylib",

		// Generic names, resolved via LD_LIBRARY_PATH
		"mod_spatialite.so",
		"mod_spatialite",
		"mod_spatialite.dylib",
	}
}

// Engine implements the GeometryOps port on an in-memory SpatiaLite
// database. InitSpatialMetaDataFull populates spatial_ref_sys with the
// standard EPSG definitions, which backs both SRID lookup and
// ST_Transform.
type Engine struct {
	db *sql.DB
}

// NewEngine creates the in-memory geometry engine.
func NewEngine(ctx context.Context) (*Engine, error) {
	db, err := sql.Open("sqlite3_spatialite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening geometry engine: %w", err)
	}

	// An in-memory database exists per connection; more than one
	// connection would see an uninitialized copy.
	db.SetMaxOpenConns(1)

	var version string
	if err := db.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("SpatiaLite extension not available: %w", err)
	}

	if _, err := db.ExecContext(ctx, "SELECT InitSpatialMetaDataFull(1)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing spatial metadata: %w", err)
	}

	return &Engine{db: db}, nil
}

// LookupSRID resolves an (authority, code) pair against spatial_ref_sys.
func (e *Engine) LookupSRID(ctx context.Context, authority string, code int) (int, error) {
	const query = `
		SELECT srid FROM spatial_ref_sys
		WHERE lower(auth_name) = lower(?) AND auth_srid = ?
	`
	var srid int
	err := e.db.QueryRowContext(ctx, query, authority, code).Scan(&srid)
	if err == sql.ErrNoRows {
		return 0, domain.ErrSRIDNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("srid lookup %s:%d: %w", authority, code, err)
	}
	return srid, nil
}

// Union dissolves the geometries into one by folding ST_Union pairwise.
// SpatiaLite signals a topology failure by returning NULL, which maps
// onto ErrUnionFailed so callers can apply their buffered retry.
func (e *Engine) Union(ctx context.Context, geometries []orb.Geometry) (orb.Geometry, error) {
	if len(geometries) == 0 {
		return nil, nil
	}
	if len(geometries) == 1 {
		return geometries[0], nil
	}

	const query = `SELECT AsBinary(ST_Union(GeomFromWKB(?, 0), GeomFromWKB(?, 0)))`

	acc, err := wkb.Marshal(geometries[0])
	if err != nil {
		return nil, fmt.Errorf("encoding union input: %w", err)
	}
	for _, g := range geometries[1:] {
		next, err := wkb.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("encoding union input: %w", err)
		}

		var result []byte
		if err := e.db.QueryRowContext(ctx, query, acc, next).Scan(&result); err != nil {
			return nil, fmt.Errorf("union: %w", err)
		}
		if result == nil {
			return nil, domain.ErrUnionFailed
		}
		acc = result
	}

	union, err := wkb.Unmarshal(acc)
	if err != nil {
		return nil, fmt.Errorf("decoding union result: %w", err)
	}
	return union, nil
}

// Buffer expands a geometry by the given distance in CRS units. A zero
// distance rebuilds the topology, healing self-intersections.
func (e *Engine) Buffer(ctx context.Context, g orb.Geometry, distance float64) (orb.Geometry, error) {
	return e.unary(ctx, g, `SELECT AsBinary(ST_Buffer(GeomFromWKB(?, 0), ?))`, distance)
}

// Simplify reduces vertex count within the tolerance, preserving
// topology so rings stay closed and parts stay apart.
func (e *Engine) Simplify(ctx context.Context, g orb.Geometry, tolerance float64) (orb.Geometry, error) {
	return e.unary(ctx, g, `SELECT AsBinary(ST_SimplifyPreserveTopology(GeomFromWKB(?, 0), ?))`, tolerance)
}

// IsValid reports whether a geometry is topologically valid.
func (e *Engine) IsValid(ctx context.Context, g orb.Geometry) (bool, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return false, fmt.Errorf("encoding geometry: %w", err)
	}

	// ST_IsValid returns -1 for unparseable input.
	var valid int
	if err := e.db.QueryRowContext(ctx, `SELECT ST_IsValid(GeomFromWKB(?, 0))`, data).Scan(&valid); err != nil {
		return false, fmt.Errorf("validity check: %w", err)
	}
	return valid == 1, nil
}

// Intersects reports whether two geometries share any point.
func (e *Engine) Intersects(ctx context.Context, a, b orb.Geometry) (bool, error) {
	dataA, err := wkb.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("encoding geometry: %w", err)
	}
	dataB, err := wkb.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("encoding geometry: %w", err)
	}

	var intersects int
	err = e.db.QueryRowContext(ctx,
		`SELECT ST_Intersects(GeomFromWKB(?, 0), GeomFromWKB(?, 0))`,
		dataA, dataB,
	).Scan(&intersects)
	if err != nil {
		return false, fmt.Errorf("intersection test: %w", err)
	}
	return intersects == 1, nil
}

// Transform reprojects a geometry between spatial reference systems
// using the EPSG definitions loaded at engine startup.
func (e *Engine) Transform(ctx context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error) {
	if sourceSRID == targetSRID {
		return g, nil
	}

	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encoding geometry: %w", err)
	}

	var result []byte
	err = e.db.QueryRowContext(ctx,
		`SELECT AsBinary(ST_Transform(GeomFromWKB(?, ?), ?))`,
		data, sourceSRID, targetSRID,
	).Scan(&result)
	if err != nil {
		return nil, fmt.Errorf("transform %d to %d: %w", sourceSRID, targetSRID, err)
	}
	if result == nil {
		return nil, fmt.Errorf("transform %d to %d produced no geometry", sourceSRID, targetSRID)
	}

	out, err := wkb.Unmarshal(result)
	if err != nil {
		return nil, fmt.Errorf("decoding transform result: %w", err)
	}
	return out, nil
}

// Ping verifies the engine is operational.
func (e *Engine) Ping(ctx context.Context) error {
	var version string
	return e.db.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version)
}

// Close releases the engine's database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// unary runs a single-geometry SQL function with one numeric argument.
func (e *Engine) unary(ctx context.Context, g orb.Geometry, query string, arg float64) (orb.Geometry, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encoding geometry: %w", err)
	}

	var result []byte
	if err := e.db.QueryRowContext(ctx, query, data, arg).Scan(&result); err != nil {
		return nil, fmt.Errorf("geometry operation: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("geometry operation produced no geometry")
	}

	out, err := wkb.Unmarshal(result)
	if err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return out, nil
}
