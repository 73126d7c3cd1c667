package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/terradex/strata/internal/domain"
)

// extentDataset builds a dataset whose document carries the
// conventional projection block plus the given extra fields.
func extentDataset(id uuid.UUID, extra map[string]interface{}) domain.Dataset {
	doc := spatialDocument(nil)
	for k, v := range extra {
		doc[k] = v
	}
	return domain.Dataset{
		ID:      id,
		Product: "ls8_scenes",
		Time: domain.NewTimeRange(
			time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC),
		),
		Document: doc,
		Added:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestExtentService(store *mockStore) (*ExtentService, *mockMetrics) {
	geo := &mockGeometryOps{srids: map[string]int{"epsg:32655": 32655}}
	resolver := NewGeometryResolver(geo, testLogger())
	indexer := NewGridIndexer(testLogger())
	metrics := newMockMetrics()
	return NewExtentService(store, resolver, indexer, metrics, testLogger()), metrics
}

func TestExtentRefreshInsertsMissing(t *testing.T) {
	store := newMockStore()
	id := uuid.New()
	store.missing = []domain.Dataset{extentDataset(id, map[string]interface{}{
		"creation_dt": "2024-03-07T12:00:00Z",
		"size_bytes":  1048576.0,
	})}

	svc, metrics := newTestExtentService(store)
	product := newProduct("ls8_scenes")
	product.ID = 1

	inserted, err := svc.Refresh(context.Background(), product)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d, want 1", inserted)
	}

	extent, ok := store.extents[id]
	if !ok {
		t.Fatal("extent row was not stored")
	}
	if extent.ProductRef != 1 {
		t.Errorf("ProductRef = %d, want 1", extent.ProductRef)
	}
	wantCenter := time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC)
	if !extent.CenterTime.Equal(wantCenter) {
		t.Errorf("CenterTime = %v, want %v", extent.CenterTime, wantCenter)
	}
	wantCreated := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	if !extent.CreationTime.Equal(wantCreated) {
		t.Errorf("CreationTime = %v, want creation_dt %v", extent.CreationTime, wantCreated)
	}
	if extent.SRID != 32655 {
		t.Errorf("SRID = %d, want 32655", extent.SRID)
	}
	if !extent.HasFootprint() {
		t.Error("extent should carry the corner-point footprint")
	}
	if extent.SizeBytes == nil || *extent.SizeBytes != 1048576 {
		t.Errorf("SizeBytes = %v, want 1048576", extent.SizeBytes)
	}
	if metrics.datasetsIndexed["ls8_scenes"] != 1 {
		t.Errorf("datasets indexed metric = %d, want 1", metrics.datasetsIndexed["ls8_scenes"])
	}
}

func TestExtentRefreshNothingMissing(t *testing.T) {
	store := newMockStore()
	svc, metrics := newTestExtentService(store)

	inserted, err := svc.Refresh(context.Background(), newProduct("ls8_scenes"))
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0", inserted)
	}
	if len(metrics.datasetsIndexed) != 0 {
		t.Error("no metrics should be recorded for an empty refresh")
	}
}

func TestExtentRefreshCreationTimeFallsBackToAdded(t *testing.T) {
	store := newMockStore()
	id := uuid.New()
	store.missing = []domain.Dataset{extentDataset(id, nil)}

	svc, _ := newTestExtentService(store)

	if _, err := svc.Refresh(context.Background(), newProduct("ls8_scenes")); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	extent := store.extents[id]
	if !extent.CreationTime.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CreationTime = %v, want the catalog added timestamp", extent.CreationTime)
	}
	if extent.SizeBytes != nil {
		t.Errorf("SizeBytes = %v, want nil when the document has none", *extent.SizeBytes)
	}
}

func TestExtentRefreshGridCellOverflowDegrades(t *testing.T) {
	store := newMockStore()
	id := uuid.New()
	store.missing = []domain.Dataset{extentDataset(id, map[string]interface{}{
		"image": map[string]interface{}{
			// Path far beyond the 16-bit cell range
			"satellite_ref_point_start": map[string]interface{}{"x": 1e9, "y": 84.0},
		},
	})}

	svc, _ := newTestExtentService(store)
	product := newProduct("ls8_scenes")
	product.Grid = domain.PathRowFields{
		Path: product.Schema.PathField,
		Row:  product.Schema.RowField,
	}

	inserted, err := svc.Refresh(context.Background(), product)
	if err != nil {
		t.Fatalf("Refresh() should degrade, got error = %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d, want 1", inserted)
	}
	if store.extents[id].GridCell != nil {
		t.Error("overflowing grid cell should be stored as absent")
	}
}

func TestExtentRefreshPathRowCell(t *testing.T) {
	store := newMockStore()
	id := uuid.New()
	store.missing = []domain.Dataset{extentDataset(id, map[string]interface{}{
		"image": map[string]interface{}{
			"satellite_ref_point_start": map[string]interface{}{"x": 90.0, "y": 84.0},
			"satellite_ref_point_end":   map[string]interface{}{"x": 90.0, "y": 85.0},
		},
	})}

	svc, _ := newTestExtentService(store)
	product := newProduct("ls8_scenes")
	product.Grid = domain.PathRowFields{
		Path: product.Schema.PathField,
		Row:  product.Schema.RowField,
	}

	if _, err := svc.Refresh(context.Background(), product); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	cell := store.extents[id].GridCell
	if cell == nil {
		t.Fatal("path/row product should yield a grid cell")
	}
	if cell.X != 90 || cell.Y != 85 {
		t.Errorf("cell = %v, want (90, 85): path lower bound, row upper bound", cell)
	}
}
