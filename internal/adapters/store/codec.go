package store

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/terradex/strata/internal/domain"
)

// The store keeps structured columns in portable encodings: metadata
// documents, schemas, grids and histograms as JSON, footprints as WKB.
// Backend-specific compression happens one layer down, in the dialect.

// encodeDocument serializes a metadata document.
func encodeDocument(doc domain.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return data, nil
}

// decodeDocument deserializes a metadata document.
func decodeDocument(data []byte) (domain.Document, error) {
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

// schemaDoc is the stored form of a metadata schema. Offsets stay plain
// data, so products with new document layouts round-trip unchanged.
type schemaDoc struct {
	ValidData        domain.DocPath   `json:"valid_data,omitempty"`
	CornerPoints     domain.DocPath   `json:"corner_points,omitempty"`
	SpatialReference domain.DocPath   `json:"spatial_reference,omitempty"`
	Datum            domain.DocPath   `json:"datum,omitempty"`
	Zone             domain.DocPath   `json:"zone,omitempty"`
	Created          domain.DocPath   `json:"created,omitempty"`
	TimeBegin        domain.DocPath   `json:"time_begin,omitempty"`
	TimeEnd          domain.DocPath   `json:"time_end,omitempty"`
	PathField        []domain.DocPath `json:"path_field,omitempty"`
	RowField         []domain.DocPath `json:"row_field,omitempty"`
}

// encodeSchema serializes a product's metadata schema.
func encodeSchema(s domain.MetadataSchema) ([]byte, error) {
	return json.Marshal(schemaDoc{
		ValidData:        s.ValidData,
		CornerPoints:     s.CornerPoints,
		SpatialReference: s.SpatialReference,
		Datum:            s.Datum,
		Zone:             s.Zone,
		Created:          s.Created,
		TimeBegin:        s.TimeBegin,
		TimeEnd:          s.TimeEnd,
		PathField:        s.PathField.Offsets,
		RowField:         s.RowField.Offsets,
	})
}

// decodeSchema deserializes a product's metadata schema.
func decodeSchema(data []byte) (domain.MetadataSchema, error) {
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.MetadataSchema{}, fmt.Errorf("decoding schema: %w", err)
	}
	return domain.MetadataSchema{
		ValidData:        doc.ValidData,
		CornerPoints:     doc.CornerPoints,
		SpatialReference: doc.SpatialReference,
		Datum:            doc.Datum,
		Zone:             doc.Zone,
		Created:          doc.Created,
		TimeBegin:        doc.TimeBegin,
		TimeEnd:          doc.TimeEnd,
		PathField:        domain.RangeField{Offsets: doc.PathField},
		RowField:         domain.RangeField{Offsets: doc.RowField},
	}, nil
}

// gridDoc is the stored form of a grid spec: the variant tag plus the
// fields of whichever variant applies.
type gridDoc struct {
	Kind     string           `json:"kind"`
	Origin   []float64        `json:"origin,omitempty"`
	TileSize []float64        `json:"tile_size,omitempty"`
	Path     []domain.DocPath `json:"path,omitempty"`
	Row      []domain.DocPath `json:"row,omitempty"`
}

// encodeGrid serializes a grid spec.
func encodeGrid(g domain.GridSpec) ([]byte, error) {
	doc := gridDoc{Kind: g.Kind()}
	switch spec := g.(type) {
	case domain.FixedGrid:
		doc.Origin = []float64{spec.OriginX, spec.OriginY}
		doc.TileSize = []float64{spec.TileWidth, spec.TileHeight}
	case domain.PathRowFields:
		doc.Path = spec.Path.Offsets
		doc.Row = spec.Row.Offsets
	}
	return json.Marshal(doc)
}

// decodeGrid deserializes a grid spec. Unknown kinds decode as NoGrid
// so old rows never break product loading.
func decodeGrid(data []byte) (domain.GridSpec, error) {
	var doc gridDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding grid spec: %w", err)
	}
	switch doc.Kind {
	case "fixed":
		if len(doc.Origin) != 2 || len(doc.TileSize) != 2 {
			return nil, fmt.Errorf("decoding grid spec: malformed fixed grid")
		}
		return domain.FixedGrid{
			OriginX:    doc.Origin[0],
			OriginY:    doc.Origin[1],
			TileWidth:  doc.TileSize[0],
			TileHeight: doc.TileSize[1],
		}, nil
	case "path_row":
		return domain.PathRowFields{
			Path: domain.RangeField{Offsets: doc.Path},
			Row:  domain.RangeField{Offsets: doc.Row},
		}, nil
	}
	return domain.NoGrid{}, nil
}

// encodeGeometry serializes a footprint; nil stays nil.
func encodeGeometry(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encoding footprint: %w", err)
	}
	return data, nil
}

// decodeGeometry deserializes a footprint; nil stays nil.
func decodeGeometry(data []byte) (orb.Geometry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding footprint: %w", err)
	}
	return g, nil
}

// encodeTimeline serializes a timeline histogram keyed by ISO dates.
func encodeTimeline(counts map[domain.Date]int) ([]byte, error) {
	out := make(map[string]int, len(counts))
	for day, count := range counts {
		out[day.String()] = count
	}
	return json.Marshal(out)
}

// decodeTimeline deserializes a timeline histogram.
func decodeTimeline(data []byte) (map[domain.Date]int, error) {
	raw := map[string]int{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding timeline: %w", err)
	}
	out := make(map[domain.Date]int, len(raw))
	for key, count := range raw {
		day, err := domain.ParseDate(key)
		if err != nil {
			return nil, fmt.Errorf("decoding timeline key %q: %w", key, err)
		}
		out[day] = count
	}
	return out, nil
}

// encodeRegions serializes a region histogram.
func encodeRegions(counts map[string]int) ([]byte, error) {
	return json.Marshal(counts)
}

// decodeRegions deserializes a region histogram.
func decodeRegions(data []byte) (map[string]int, error) {
	out := map[string]int{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding regions: %w", err)
	}
	return out, nil
}

// encodeCRSSet serializes a CRS set as a sorted list for stable rows.
func encodeCRSSet(o *domain.TimePeriodOverview) ([]byte, error) {
	return json.Marshal(o.SortedCRSes())
}

// decodeCRSSet deserializes a CRS set.
func decodeCRSSet(data []byte) (map[string]struct{}, error) {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decoding crs set: %w", err)
	}
	out := make(map[string]struct{}, len(list))
	for _, crs := range list {
		out[crs] = struct{}{}
	}
	return out, nil
}
