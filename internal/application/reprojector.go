package application

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// antimeridianBox brackets the 180th meridian. Footprints intersecting
// it need unwrapping before web display.
var antimeridianBox = orb.Polygon{{
	{179, -90}, {181, -90}, {181, 90}, {179, 90}, {179, -90},
}}

// wrapDetectLon is the longitude beyond which, on both sides at once,
// a ring is taken to cross the antimeridian rather than genuinely span
// the globe.
const wrapDetectLon = 170.0

// GeometryReprojector prepares stored footprints for web display:
// reprojection to WGS84 plus antimeridian unwrapping, so a footprint
// over the 180th meridian renders as one shape instead of a smear
// across the whole map.
type GeometryReprojector struct {
	geo    output.GeometryOps
	logger *slog.Logger
}

// NewGeometryReprojector creates a new reprojector.
func NewGeometryReprojector(geo output.GeometryOps, logger *slog.Logger) *GeometryReprojector {
	return &GeometryReprojector{
		geo:    geo,
		logger: logger,
	}
}

// ToDisplay returns the footprint in EPSG:4326 ready for rendering, or
// nil when the footprint or its CRS is absent or unusable. Unusable
// source data is a diagnostic, not an error; only geometry engine
// failures propagate.
func (r *GeometryReprojector) ToDisplay(ctx context.Context, footprint orb.Geometry, crs string) (orb.Geometry, error) {
	if footprint == nil || crs == "" {
		return nil, nil
	}

	srid, err := domain.ParseCRS(crs)
	if err != nil {
		r.logger.Debug("footprint CRS not parseable, no display geometry", "crs", crs)
		return nil, nil
	}

	display := footprint
	if srid != domain.SRIDWGS84 {
		display, err = r.geo.Transform(ctx, footprint, srid, domain.SRIDWGS84)
		if err != nil {
			r.logger.Warn("footprint reprojection failed, no display geometry",
				"crs", crs, "error", err)
			return nil, nil
		}
	}

	near, err := r.geo.Intersects(ctx, display, antimeridianBox)
	if err != nil {
		return nil, err
	}
	if near {
		display = unwrapGeometry(display)
	}

	// Buffering by zero rebuilds the topology, healing self-touches
	// introduced by reprojection or unwrapping.
	healed, err := r.geo.Buffer(ctx, display, 0)
	if err != nil {
		return nil, err
	}
	return healed, nil
}

// unwrapGeometry applies antimeridian unwrapping part by part.
// Non-polygonal geometry passes through untouched.
func unwrapGeometry(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon:
		return unwrapPolygon(geom)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(geom))
		for _, poly := range geom {
			out = append(out, unwrapPolygon(poly))
		}
		return out
	default:
		return g
	}
}

// unwrapPolygon shifts the western vertices of a wrapped part east by
// one revolution so the part becomes contiguous past 180 degrees.
// Interior rings cannot survive the shift and are dropped from wrapped
// parts; untouched parts keep theirs.
func unwrapPolygon(p orb.Polygon) orb.Polygon {
	if len(p) == 0 || !ringWraps(p[0]) {
		return p
	}
	exterior := make(orb.Ring, len(p[0]))
	for i, pt := range p[0] {
		if pt[0] < -wrapDetectLon {
			pt[0] += 360
		}
		exterior[i] = pt
	}
	return orb.Polygon{exterior}
}

// ringWraps reports whether a ring has vertices hard against both
// sides of the antimeridian, the signature of a shape split by the
// longitude seam.
func ringWraps(r orb.Ring) bool {
	east, west := false, false
	for _, pt := range r {
		if pt[0] > wrapDetectLon {
			east = true
		}
		if pt[0] < -wrapDetectLon {
			west = true
		}
	}
	return east && west
}
