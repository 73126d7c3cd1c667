package application

import (
	"context"
	"testing"

	"github.com/paulmach/orb"

	"github.com/terradex/strata/internal/domain"
)

// spatialDocument builds a document with the conventional projection
// block: four corner points and an authority:code spatial reference.
func spatialDocument(mutate func(projection map[string]interface{})) domain.Document {
	projection := map[string]interface{}{
		"geo_ref_points": map[string]interface{}{
			"ll": map[string]interface{}{"x": 100.0, "y": 200.0},
			"ul": map[string]interface{}{"x": 100.0, "y": 300.0},
			"ur": map[string]interface{}{"x": 200.0, "y": 300.0},
			"lr": map[string]interface{}{"x": 200.0, "y": 200.0},
		},
		"spatial_reference": "EPSG:32655",
	}
	if mutate != nil {
		mutate(projection)
	}
	return domain.Document{
		"grid_spatial": map[string]interface{}{
			"projection": projection,
		},
	}
}

func newTestResolver() (*GeometryResolver, *mockGeometryOps) {
	geo := &mockGeometryOps{srids: map[string]int{"epsg:32655": 32655}}
	return NewGeometryResolver(geo, testLogger()), geo
}

func TestGeometryResolver_ValidDataWins(t *testing.T) {
	resolver, _ := newTestResolver()

	doc := spatialDocument(func(projection map[string]interface{}) {
		projection["valid_data"] = map[string]interface{}{
			"type": "Polygon",
			"coordinates": []interface{}{
				[]interface{}{
					[]interface{}{0.0, 0.0},
					[]interface{}{10.0, 0.0},
					[]interface{}{10.0, 10.0},
					[]interface{}{0.0, 0.0},
				},
			},
		}
	})

	footprint, srid, err := resolver.Resolve(context.Background(), doc, domain.DefaultEOSchema())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	poly, ok := footprint.(orb.Polygon)
	if !ok {
		t.Fatalf("footprint = %T, want orb.Polygon", footprint)
	}
	if got := poly[0][1]; !got.Equal(orb.Point{10, 0}) {
		t.Errorf("footprint vertex = %v, want the valid_data polygon, not the corner quadrilateral", got)
	}
	if srid != 32655 {
		t.Errorf("srid = %d, want 32655", srid)
	}
}

func TestGeometryResolver_CornerQuadrilateral(t *testing.T) {
	resolver, _ := newTestResolver()

	footprint, _, err := resolver.Resolve(context.Background(), spatialDocument(nil), domain.DefaultEOSchema())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	poly, ok := footprint.(orb.Polygon)
	if !ok {
		t.Fatalf("footprint = %T, want orb.Polygon", footprint)
	}
	ring := poly[0]
	if len(ring) != 5 {
		t.Fatalf("ring has %d points, want 5 (closed quadrilateral)", len(ring))
	}

	want := []orb.Point{{100, 200}, {100, 300}, {200, 300}, {200, 200}, {100, 200}}
	for i, pt := range want {
		if !ring[i].Equal(pt) {
			t.Errorf("ring[%d] = %v, want %v (ll, ul, ur, lr order)", i, ring[i], pt)
		}
	}
}

func TestGeometryResolver_BadValidDataFallsBack(t *testing.T) {
	resolver, _ := newTestResolver()

	doc := spatialDocument(func(projection map[string]interface{}) {
		projection["valid_data"] = map[string]interface{}{"type": "Banana"}
	})

	footprint, _, err := resolver.Resolve(context.Background(), doc, domain.DefaultEOSchema())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	poly, ok := footprint.(orb.Polygon)
	if !ok {
		t.Fatalf("footprint = %T, want corner quadrilateral fallback", footprint)
	}
	if !poly[0][0].Equal(orb.Point{100, 200}) {
		t.Errorf("fallback ring starts at %v, want lower-left corner", poly[0][0])
	}
}

func TestGeometryResolver_MissingCornerMeansNoFootprint(t *testing.T) {
	resolver, _ := newTestResolver()

	doc := spatialDocument(func(projection map[string]interface{}) {
		corners := projection["geo_ref_points"].(map[string]interface{})
		delete(corners, "ur")
	})

	footprint, srid, err := resolver.Resolve(context.Background(), doc, domain.DefaultEOSchema())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if footprint != nil {
		t.Errorf("footprint = %v, want nil with an incomplete corner set", footprint)
	}
	if srid != 32655 {
		t.Errorf("srid = %d, want 32655 (independent of the footprint)", srid)
	}
}

func TestGeometryResolver_SRIDResolution(t *testing.T) {
	tests := []struct {
		name string
		ref  interface{}
		want int
	}{
		{"known reference", "EPSG:32655", 32655},
		{"authority is case-insensitive", "epsg:32655", 32655},
		{"unknown reference resolves to absent", "EPSG:99999", 0},
		{"malformed reference resolves to absent", "not a reference", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, _ := newTestResolver()
			doc := spatialDocument(func(projection map[string]interface{}) {
				projection["spatial_reference"] = tt.ref
			})

			_, srid, err := resolver.Resolve(context.Background(), doc, domain.DefaultEOSchema())
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if srid != tt.want {
				t.Errorf("srid = %d, want %d", srid, tt.want)
			}
		})
	}
}

func TestGeometryResolver_LegacyDatumZone(t *testing.T) {
	tests := []struct {
		name  string
		datum string
		zone  interface{}
		want  int
	}{
		{"negative zone", "GDA94", -55.0, 28355},
		{"positive zone", "GDA94", 55.0, 28355},
		{"integer zone", "GDA94", 56, 28356},
		{"non-legacy datum", "WGS84", -55.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, _ := newTestResolver()
			doc := spatialDocument(func(projection map[string]interface{}) {
				delete(projection, "spatial_reference")
				projection["datum"] = tt.datum
				projection["zone"] = tt.zone
			})

			_, srid, err := resolver.Resolve(context.Background(), doc, domain.DefaultEOSchema())
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if srid != tt.want {
				t.Errorf("srid = %d, want %d", srid, tt.want)
			}
		})
	}
}

func TestGeometryResolver_NonSpatialSchema(t *testing.T) {
	resolver, _ := newTestResolver()

	schema := domain.MetadataSchema{
		TimeBegin: domain.DocPath{"extent", "from_dt"},
		TimeEnd:   domain.DocPath{"extent", "to_dt"},
	}

	footprint, srid, err := resolver.Resolve(context.Background(), spatialDocument(nil), schema)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if footprint != nil || srid != 0 {
		t.Errorf("Resolve() = (%v, %d), want absent footprint and srid for a non-spatial schema",
			footprint, srid)
	}
}
