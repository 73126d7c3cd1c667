// Package domain contains the core business entities and value objects.
package domain

import (
	"time"
)

// Document is a parsed dataset metadata document. Documents arrive as
// YAML or JSON and are normalized to string-keyed maps before they
// reach the domain.
type Document map[string]interface{}

// DocPath is an ordered key sequence addressing a value inside a
// Document. Paths are plain data so new metadata layouts need no code
// change.
type DocPath []string

// IsZero returns true if the path is unset.
func (p DocPath) IsZero() bool {
	return len(p) == 0
}

// String returns the dotted form of the path.
func (p DocPath) String() string {
	s := ""
	for i, k := range p {
		if i > 0 {
			s += "."
		}
		s += k
	}
	return s
}

// Get resolves a path against the document. The second return value is
// false if any segment is missing or a non-map is traversed.
func (d Document) Get(path DocPath) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur interface{} = map[string]interface{}(d)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// GetMap resolves a path to a nested map.
func (d Document) GetMap(path DocPath) (map[string]interface{}, bool) {
	v, ok := d.Get(path)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// GetString resolves a path to a string.
func (d Document) GetString(path DocPath) (string, bool) {
	v, ok := d.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat resolves a path to a float64, converting integer scalars.
func (d Document) GetFloat(path DocPath) (float64, bool) {
	v, ok := d.Get(path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// timeLayouts are the timestamp formats accepted in metadata documents,
// tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// GetTime resolves a path to a timestamp. YAML decoding may already
// yield a time.Time; string scalars are parsed against the accepted
// layouts. Naive timestamps are taken as UTC.
func (d Document) GetTime(path DocPath) (time.Time, bool) {
	v, ok := d.Get(path)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return ParseDocTime(t)
	}
	return time.Time{}, false
}

// ParseDocTime parses a metadata timestamp string.
func ParseDocTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Location() == time.Local {
				t = t.UTC()
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// toFloat converts the numeric scalar types produced by the YAML and
// JSON decoders.
func toFloat(v interface{}) (float64, bool) {
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

// RangeField is a document field whose value spans several offsets,
// such as a satellite path that has a start and an end point. Its
// bounds are the minimum and maximum over the populated offsets.
type RangeField struct {
	Offsets []DocPath
}

// IsZero returns true if the field declares no offsets.
func (f RangeField) IsZero() bool {
	return len(f.Offsets) == 0
}

// Bounds resolves the field against a document and returns the lower
// and upper bound over all populated offsets. ok is false if no offset
// resolves to a number.
func (f RangeField) Bounds(doc Document) (lower, upper float64, ok bool) {
	for _, path := range f.Offsets {
		v, found := doc.GetFloat(path)
		if !found {
			continue
		}
		if !ok {
			lower, upper, ok = v, v, true
			continue
		}
		if v < lower {
			lower = v
		}
		if v > upper {
			upper = v
		}
	}
	return lower, upper, ok
}

// MetadataSchema declares where a product's documents keep their
// spatial and temporal fields. All offsets are plain data; a zero path
// means the product does not carry that field.
type MetadataSchema struct {
	ValidData        DocPath    // authoritative footprint polygon (GeoJSON-shaped)
	CornerPoints     DocPath    // parent of the ll/ul/ur/lr corner points
	SpatialReference DocPath    // "authority:code" string
	Datum            DocPath    // legacy datum name
	Zone             DocPath    // legacy zone number
	Created          DocPath    // explicit creation timestamp, optional
	TimeBegin        DocPath    // acquisition interval start
	TimeEnd          DocPath    // acquisition interval end
	PathField        RangeField // satellite path, for path/row gridding
	RowField         RangeField // satellite row, for path/row gridding
}

// DefaultEOSchema returns the conventional earth-observation document
// layout: projection fields under grid_spatial, the acquisition range
// under extent, and path/row reference points under image.
func DefaultEOSchema() MetadataSchema {
	return MetadataSchema{
		ValidData:        DocPath{"grid_spatial", "projection", "valid_data"},
		CornerPoints:     DocPath{"grid_spatial", "projection", "geo_ref_points"},
		SpatialReference: DocPath{"grid_spatial", "projection", "spatial_reference"},
		Datum:            DocPath{"grid_spatial", "projection", "datum"},
		Zone:             DocPath{"grid_spatial", "projection", "zone"},
		TimeBegin:        DocPath{"extent", "from_dt"},
		TimeEnd:          DocPath{"extent", "to_dt"},
		PathField: RangeField{Offsets: []DocPath{
			{"image", "satellite_ref_point_start", "x"},
			{"image", "satellite_ref_point_end", "x"},
		}},
		RowField: RangeField{Offsets: []DocPath{
			{"image", "satellite_ref_point_start", "y"},
			{"image", "satellite_ref_point_end", "y"},
		}},
	}
}

// IsSpatial returns true if the schema declares any source for a
// footprint. Non-spatial products (telemetry, ancillary) resolve to an
// absent footprint without error.
func (s MetadataSchema) IsSpatial() bool {
	return !s.ValidData.IsZero() || !s.CornerPoints.IsZero()
}
