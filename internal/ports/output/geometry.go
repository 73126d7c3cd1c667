package output

import (
	"context"

	"github.com/paulmach/orb"
)

// GeometryOps defines the secondary port for computational geometry
// and spatial reference lookup. Implementations are expected to be
// safe for concurrent use; all geometries are planar xy.
type GeometryOps interface {
	// LookupSRID resolves an (authority, code) pair against the
	// spatial reference table. Returns domain.ErrSRIDNotFound for
	// unknown pairs.
	LookupSRID(ctx context.Context, authority string, code int) (int, error)

	// Union dissolves the given geometries into one. All inputs must
	// share a CRS. Returns domain.ErrUnionFailed if the union cannot
	// be computed.
	Union(ctx context.Context, geometries []orb.Geometry) (orb.Geometry, error)

	// Buffer expands a geometry by the given distance in CRS units.
	// A distance of zero heals self-intersections.
	Buffer(ctx context.Context, g orb.Geometry, distance float64) (orb.Geometry, error)

	// Simplify reduces vertex count within the given tolerance.
	Simplify(ctx context.Context, g orb.Geometry, tolerance float64) (orb.Geometry, error)

	// IsValid reports whether a geometry is topologically valid.
	IsValid(ctx context.Context, g orb.Geometry) (bool, error)

	// Intersects reports whether two geometries share any point.
	Intersects(ctx context.Context, a, b orb.Geometry) (bool, error)

	// Transform reprojects a geometry between spatial reference
	// systems.
	Transform(ctx context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error)

	// Ping verifies the engine is operational.
	Ping(ctx context.Context) error

	// Close releases engine resources.
	Close() error
}
