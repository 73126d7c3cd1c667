// Package application contains the application services.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// spatialRefPattern matches "authority:code" spatial reference strings.
var spatialRefPattern = regexp.MustCompile(`^([A-Za-z0-9]+):([0-9]+)$`)

// legacyDatum is the one datum name for which a spatial reference can
// be derived from datum/zone fields when no authority string is given.
// GDA94 UTM zones map onto EPSG 283xx.
const legacyDatum = "GDA94"

// GeometryResolver derives a dataset's native-CRS footprint and its
// spatial reference id from a metadata document.
type GeometryResolver struct {
	geo    output.GeometryOps
	logger *slog.Logger
}

// NewGeometryResolver creates a new geometry resolver.
func NewGeometryResolver(geo output.GeometryOps, logger *slog.Logger) *GeometryResolver {
	return &GeometryResolver{
		geo:    geo,
		logger: logger,
	}
}

// Resolve returns the footprint and SRID for one document. Either or
// both may be absent (nil geometry, SRID 0) without error: non-spatial
// products, incomplete documents, and unknown spatial references are
// diagnostics, not failures. An error is returned only when the
// spatial reference engine itself fails.
func (r *GeometryResolver) Resolve(ctx context.Context, doc domain.Document, schema domain.MetadataSchema) (orb.Geometry, int, error) {
	if !schema.IsSpatial() {
		return nil, 0, nil
	}

	footprint := r.resolveFootprint(doc, schema)

	srid, err := r.resolveSRID(ctx, doc, schema)
	if err != nil {
		return nil, 0, err
	}

	return footprint, srid, nil
}

// resolveFootprint builds the footprint geometry. A populated valid
// data polygon always wins over the corner points.
func (r *GeometryResolver) resolveFootprint(doc domain.Document, schema domain.MetadataSchema) orb.Geometry {
	if !schema.ValidData.IsZero() {
		if raw, ok := doc.GetMap(schema.ValidData); ok {
			g, err := parseGeoJSONValue(raw)
			if err != nil {
				r.logger.Warn("unparseable valid_data polygon, falling back to corner points",
					"path", schema.ValidData.String(), "error", err)
			} else {
				return g
			}
		}
	}

	return r.cornerFootprint(doc, schema)
}

// cornerFootprint connects the four named corner points into a single
// quadrilateral ring: lower-left, upper-left, upper-right, lower-right,
// closed back to lower-left.
func (r *GeometryResolver) cornerFootprint(doc domain.Document, schema domain.MetadataSchema) orb.Geometry {
	if schema.CornerPoints.IsZero() {
		return nil
	}

	corners, ok := doc.GetMap(schema.CornerPoints)
	if !ok {
		return nil
	}

	ring := make(orb.Ring, 0, 5)
	for _, name := range []string{"ll", "ul", "ur", "lr"} {
		pt, ok := cornerPoint(corners, name)
		if !ok {
			r.logger.Debug("incomplete corner points, no footprint",
				"missing", name, "path", schema.CornerPoints.String())
			return nil
		}
		ring = append(ring, pt)
	}
	ring = append(ring, ring[0])

	return orb.Polygon{ring}
}

// cornerPoint reads one named corner {x, y} from the corner map.
func cornerPoint(corners map[string]interface{}, name string) (orb.Point, bool) {
	raw, ok := corners[name].(map[string]interface{})
	if !ok {
		return orb.Point{}, false
	}
	x, okX := toFloatValue(raw["x"])
	y, okY := toFloatValue(raw["y"])
	if !okX || !okY {
		return orb.Point{}, false
	}
	return orb.Point{x, y}, true
}

// resolveSRID resolves the document's spatial reference, trying the
// authority:code string first, then the legacy datum/zone pair. An
// unresolvable reference yields 0, never an error.
func (r *GeometryResolver) resolveSRID(ctx context.Context, doc domain.Document, schema domain.MetadataSchema) (int, error) {
	if !schema.SpatialReference.IsZero() {
		if ref, ok := doc.GetString(schema.SpatialReference); ok {
			if m := spatialRefPattern.FindStringSubmatch(strings.TrimSpace(ref)); m != nil {
				code, _ := strconv.Atoi(m[2])
				srid, err := r.geo.LookupSRID(ctx, strings.ToLower(m[1]), code)
				if err == nil {
					return srid, nil
				}
				if !isNotFound(err) {
					return 0, err
				}
				r.logger.Debug("spatial reference not in reference table", "ref", ref)
				return 0, nil
			}
			r.logger.Debug("spatial reference string has no authority:code form", "ref", ref)
		}
	}

	return r.legacySRID(doc, schema), nil
}

// legacySRID derives EPSG 283xx from GDA94 datum/zone fields. Any
// other datum is unresolved.
func (r *GeometryResolver) legacySRID(doc domain.Document, schema domain.MetadataSchema) int {
	if schema.Datum.IsZero() || schema.Zone.IsZero() {
		return 0
	}
	datum, ok := doc.GetString(schema.Datum)
	if !ok || datum != legacyDatum {
		return 0
	}
	zone, ok := doc.GetFloat(schema.Zone)
	if !ok {
		return 0
	}

	srid, err := strconv.Atoi("283" + strconv.Itoa(int(math.Abs(zone))))
	if err != nil {
		return 0
	}
	return srid
}

// parseGeoJSONValue decodes a GeoJSON-shaped document value into a
// geometry.
func parseGeoJSONValue(raw map[string]interface{}) (orb.Geometry, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}

// toFloatValue converts decoder scalar types to float64.
func toFloatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// isNotFound reports whether an error is a not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
