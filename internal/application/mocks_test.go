package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// storedOverview is one overview row held by the mock store.
type storedOverview struct {
	ref      int
	key      output.PeriodKey
	overview *domain.TimePeriodOverview
}

// mockStore implements output.Store for testing.
type mockStore struct {
	products map[string]*domain.Product
	datasets map[uuid.UUID]*domain.Dataset
	missing  []domain.Dataset
	extents  map[uuid.UUID]domain.DatasetExtent

	overviews map[string]storedOverview

	nextRef   int
	listErr   error
	insertErr error
	putErr    error
	pingErr   error
	putCalls  int
	upsertDs  int
}

func newMockStore() *mockStore {
	return &mockStore{
		products:  map[string]*domain.Product{},
		datasets:  map[uuid.UUID]*domain.Dataset{},
		extents:   map[uuid.UUID]domain.DatasetExtent{},
		overviews: map[string]storedOverview{},
	}
}

func overviewKey(productRef int, key output.PeriodKey) string {
	return fmt.Sprintf("%d/%s/%s", productRef, key.Period, key.StartDay)
}

func (m *mockStore) UpsertProduct(_ context.Context, product *domain.Product) (int, error) {
	if existing, ok := m.products[product.Name]; ok {
		product.ID = existing.ID
		m.products[product.Name] = product
		return existing.ID, nil
	}
	m.nextRef++
	product.ID = m.nextRef
	m.products[product.Name] = product
	return m.nextRef, nil
}

func (m *mockStore) GetProduct(_ context.Context, name string) (*domain.Product, error) {
	product, ok := m.products[name]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func (m *mockStore) ListProducts(_ context.Context) ([]domain.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockStore) UpsertDataset(_ context.Context, dataset *domain.Dataset) error {
	m.upsertDs++
	m.datasets[dataset.ID] = dataset
	return nil
}

func (m *mockStore) GetDataset(_ context.Context, id uuid.UUID) (*domain.Dataset, error) {
	ds, ok := m.datasets[id]
	if !ok {
		return nil, domain.ErrDatasetNotFound
	}
	return ds, nil
}

func (m *mockStore) DatasetsMissingExtent(_ context.Context, _ string) ([]domain.Dataset, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.missing, nil
}

func (m *mockStore) CountDatasets(_ context.Context, _ string) (int, error) {
	return len(m.datasets), nil
}

func (m *mockStore) InsertExtents(_ context.Context, rows []domain.DatasetExtent) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	inserted := 0
	for _, row := range rows {
		if _, ok := m.extents[row.ID]; ok {
			continue
		}
		m.extents[row.ID] = row
		inserted++
	}
	return inserted, nil
}

func (m *mockStore) ExtentsForProduct(_ context.Context, productRef int, limit int) ([]domain.DatasetExtent, error) {
	out := make([]domain.DatasetExtent, 0, len(m.extents))
	for _, row := range m.extents {
		if row.ProductRef == productRef {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CenterTime.Before(out[j].CenterTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) ExtentsForPeriod(ctx context.Context, productRef int, start, end time.Time) ([]domain.DatasetExtent, error) {
	rows, err := m.ExtentsForProduct(ctx, productRef, 0)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DatasetExtent, 0, len(rows))
	for _, row := range rows {
		if !start.IsZero() && row.CenterTime.Before(start) {
			continue
		}
		if !end.IsZero() && !row.CenterTime.Before(end) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *mockStore) CountExtents(_ context.Context, productRef int) (int, error) {
	n := 0
	for _, row := range m.extents {
		if row.ProductRef == productRef {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) PutOverview(_ context.Context, productRef int, key output.PeriodKey, overview *domain.TimePeriodOverview) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.putCalls++
	m.overviews[overviewKey(productRef, key)] = storedOverview{ref: productRef, key: key, overview: overview}
	return nil
}

func (m *mockStore) GetOverview(_ context.Context, productRef int, key output.PeriodKey) (*domain.TimePeriodOverview, error) {
	stored, ok := m.overviews[overviewKey(productRef, key)]
	if !ok {
		return nil, domain.ErrOverviewNotFound
	}
	return stored.overview, nil
}

func (m *mockStore) ListPeriods(_ context.Context, productRef int) ([]output.PeriodKey, error) {
	out := []output.PeriodKey{}
	for _, stored := range m.overviews {
		if stored.ref == productRef {
			out = append(out, stored.key)
		}
	}
	return out, nil
}

func (m *mockStore) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockStore) Close() error {
	return nil
}

// mockGeometryOps implements output.GeometryOps for testing. Union
// concatenates polygon parts into a multipolygon, which is exact for
// disjoint inputs; Intersects compares bounding boxes, which is exact
// for axis-aligned boxes.
type mockGeometryOps struct {
	srids map[string]int

	unionFailures int
	unionCalls    int
	bufferCalls   int
	bufferDists   []float64
	simplifyCalls int
	transformFn   func(g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error)
	validFn       func(g orb.Geometry) bool
	pingErr       error
}

func (m *mockGeometryOps) LookupSRID(_ context.Context, authority string, code int) (int, error) {
	if m.srids != nil {
		if srid, ok := m.srids[fmt.Sprintf("%s:%d", authority, code)]; ok {
			return srid, nil
		}
	}
	return 0, domain.ErrSRIDNotFound
}

func (m *mockGeometryOps) Union(_ context.Context, geometries []orb.Geometry) (orb.Geometry, error) {
	m.unionCalls++
	if m.unionFailures > 0 {
		m.unionFailures--
		return nil, domain.ErrUnionFailed
	}
	out := orb.MultiPolygon{}
	for _, g := range geometries {
		switch geom := g.(type) {
		case orb.Polygon:
			out = append(out, geom)
		case orb.MultiPolygon:
			out = append(out, geom...)
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func (m *mockGeometryOps) Buffer(_ context.Context, g orb.Geometry, distance float64) (orb.Geometry, error) {
	m.bufferCalls++
	m.bufferDists = append(m.bufferDists, distance)
	return g, nil
}

func (m *mockGeometryOps) Simplify(_ context.Context, g orb.Geometry, _ float64) (orb.Geometry, error) {
	m.simplifyCalls++
	return g, nil
}

func (m *mockGeometryOps) IsValid(_ context.Context, g orb.Geometry) (bool, error) {
	if m.validFn != nil {
		return m.validFn(g), nil
	}
	return true, nil
}

func (m *mockGeometryOps) Intersects(_ context.Context, a, b orb.Geometry) (bool, error) {
	return a.Bound().Intersects(b.Bound()), nil
}

func (m *mockGeometryOps) Transform(_ context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error) {
	if m.transformFn != nil {
		return m.transformFn(g, sourceSRID, targetSRID)
	}
	return g, nil
}

func (m *mockGeometryOps) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockGeometryOps) Close() error {
	return nil
}

// mockMetrics implements output.MetricsCollector for testing.
type mockMetrics struct {
	datasetsIndexed map[string]int
	summaries       map[string]int
	unionRetries    int
	ingested        map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		datasetsIndexed: map[string]int{},
		summaries:       map[string]int{},
		ingested:        map[string]int{},
	}
}

func (m *mockMetrics) IncDatasetsIndexed(product string, count int) {
	m.datasetsIndexed[product] += count
}

func (m *mockMetrics) IncSummariesGenerated(product string, period string) {
	m.summaries[product+"/"+period]++
}

func (m *mockMetrics) ObserveSummaryDuration(_ string, _ time.Duration) {}

func (m *mockMetrics) IncUnionRetries() {
	m.unionRetries++
}

func (m *mockMetrics) IncDocumentsIngested(kind string, count int) {
	m.ingested[kind] += count
}

func (m *mockMetrics) IncCacheRequest(_ bool) {}

func (m *mockMetrics) IncStorageOperations(_ string, _ bool) {}

func (m *mockMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// mockCache implements output.ResponseCache for testing.
type mockCache struct {
	values      map[string][]byte
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{values: map[string][]byte{}}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *mockCache) Set(_ context.Context, _, key string, value []byte, _ time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *mockCache) InvalidateProduct(_ context.Context, product string) error {
	m.invalidated = append(m.invalidated, product)
	return nil
}

func (m *mockCache) Ping(_ context.Context) error {
	return nil
}

func (m *mockCache) Close() error {
	return nil
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	objects []output.StorageObject
	data    map[string][]byte
	listErr error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objects, nil
}

func (m *mockStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// testLogger returns an errors-only logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
