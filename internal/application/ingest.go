package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// productKind marks a storage document as a product definition rather
// than dataset metadata.
const productKind = "product"

// IngestStats contains the result of an ingest batch.
type IngestStats struct {
	ProductsUpserted int `json:"products_upserted"`
	DatasetsUpserted int `json:"datasets_upserted"`
	Skipped          int `json:"skipped"`
}

// IngestService loads product definitions and dataset metadata
// documents from object storage into the catalog. Individual document
// failures never abort a batch.
type IngestService struct {
	registry *ProductRegistry
	store    output.Store
	storage  output.ObjectStorage
	metrics  output.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewIngestService creates a new ingest service.
func NewIngestService(registry *ProductRegistry, store output.Store, storage output.ObjectStorage, metrics output.MetricsCollector, logger *slog.Logger) *IngestService {
	return &IngestService{
		registry: registry,
		store:    store,
		storage:  storage,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// IngestAll lists every metadata document in storage and ingests it.
// Product definitions are applied before dataset documents so that
// datasets can reference products arriving in the same batch.
func (s *IngestService) IngestAll(ctx context.Context) (IngestStats, error) {
	stats := IngestStats{}

	objects, err := s.storage.List(ctx)
	if err != nil {
		return stats, &domain.StorageError{Operation: "list", Err: err}
	}

	type parsed struct {
		key string
		doc domain.Document
	}
	var products, datasets []parsed

	for _, obj := range objects {
		if !isMetadataKey(obj.Key) {
			continue
		}
		doc, err := s.fetchDocument(ctx, obj.Key)
		if err != nil {
			s.logger.Warn("skipping unreadable document",
				"error", &domain.IngestError{Source: obj.Key, Err: err})
			stats.Skipped++
			continue
		}
		if kind, _ := doc.GetString(domain.DocPath{"kind"}); kind == productKind {
			products = append(products, parsed{obj.Key, doc})
		} else {
			datasets = append(datasets, parsed{obj.Key, doc})
		}
	}

	for _, p := range products {
		if err := s.ingestProduct(ctx, p.doc); err != nil {
			s.logger.Warn("skipping product document",
				"error", &domain.IngestError{Source: p.key, Err: err})
			stats.Skipped++
			continue
		}
		stats.ProductsUpserted++
	}
	for _, d := range datasets {
		if _, err := s.ingestDataset(ctx, d.doc); err != nil {
			s.logger.Warn("skipping dataset document",
				"error", &domain.IngestError{Source: d.key, Err: err})
			stats.Skipped++
			continue
		}
		stats.DatasetsUpserted++
	}

	s.metrics.IncDocumentsIngested(productKind, stats.ProductsUpserted)
	s.metrics.IncDocumentsIngested("dataset", stats.DatasetsUpserted)
	s.logger.Info("ingest complete",
		"products", stats.ProductsUpserted,
		"datasets", stats.DatasetsUpserted,
		"skipped", stats.Skipped)
	return stats, nil
}

// IngestObject fetches and ingests one document by storage key,
// returning the name of the affected product.
func (s *IngestService) IngestObject(ctx context.Context, key string) (string, error) {
	doc, err := s.fetchDocument(ctx, key)
	if err != nil {
		return "", &domain.IngestError{Source: key, Err: err}
	}

	if kind, _ := doc.GetString(domain.DocPath{"kind"}); kind == productKind {
		if err := s.ingestProduct(ctx, doc); err != nil {
			return "", &domain.IngestError{Source: key, Err: err}
		}
		s.metrics.IncDocumentsIngested(productKind, 1)
		name, _ := doc.GetString(domain.DocPath{"name"})
		return name, nil
	}

	product, err := s.ingestDataset(ctx, doc)
	if err != nil {
		return "", &domain.IngestError{Source: key, Err: err}
	}
	s.metrics.IncDocumentsIngested("dataset", 1)
	return product, nil
}

// fetchDocument streams and parses one storage object.
func (s *IngestService) fetchDocument(ctx context.Context, key string) (domain.Document, error) {
	reader, err := s.storage.GetReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return ParseDocument(data)
}

// ingestProduct registers one product definition document.
func (s *IngestService) ingestProduct(ctx context.Context, doc domain.Document) error {
	product, err := productFromDocument(doc, s.now())
	if err != nil {
		return err
	}
	_, err = s.registry.Register(ctx, product)
	return err
}

// ingestDataset upserts one dataset document, returning the owning
// product's name.
func (s *IngestService) ingestDataset(ctx context.Context, doc domain.Document) (string, error) {
	rawID, ok := doc.GetString(domain.DocPath{"id"})
	if !ok {
		return "", fmt.Errorf("document has no id: %w", domain.ErrInvalidDocument)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", fmt.Errorf("dataset id %q: %w", rawID, domain.ErrInvalidDocument)
	}

	productName, ok := doc.GetString(domain.DocPath{"product", "name"})
	if !ok {
		productName, ok = doc.GetString(domain.DocPath{"product_name"})
	}
	if !ok || productName == "" {
		return "", fmt.Errorf("document names no product: %w", domain.ErrInvalidDocument)
	}

	product, err := s.registry.Get(ctx, productName)
	if err != nil {
		return "", err
	}

	timeRange, err := acquisitionTime(doc, product.Schema)
	if err != nil {
		return "", err
	}

	archived := false
	if v, ok := doc.Get(domain.DocPath{"archived"}); ok {
		b, _ := v.(bool)
		archived = b
	}

	dataset := &domain.Dataset{
		ID:       id,
		Product:  productName,
		Time:     timeRange,
		Document: doc,
		Added:    s.now(),
		Archived: archived,
	}
	if err := s.store.UpsertDataset(ctx, dataset); err != nil {
		return "", &domain.StoreError{Operation: "upsert dataset", Entity: rawID, Err: err}
	}
	return productName, nil
}

// ParseDocument parses one YAML or JSON metadata document. YAML may
// decode nested maps with interface keys; these are normalized to
// string keys so path lookups work uniformly.
func ParseDocument(data []byte) (domain.Document, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}

	normalized, ok := normalizeKeys(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top level is not a mapping", domain.ErrInvalidDocument)
	}
	return domain.Document(normalized), nil
}

// normalizeKeys recursively converts map keys to strings, dropping
// entries whose keys are not strings.
func normalizeKeys(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = normalizeKeys(value)
		}
		return result
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			strKey, ok := key.(string)
			if !ok {
				continue
			}
			result[strKey] = normalizeKeys(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, value := range v {
			result[i] = normalizeKeys(value)
		}
		return result
	default:
		return v
	}
}

// productFromDocument maps a product definition document to a product.
func productFromDocument(doc domain.Document, added time.Time) (*domain.Product, error) {
	name, ok := doc.GetString(domain.DocPath{"name"})
	if !ok || name == "" {
		return nil, fmt.Errorf("product definition has no name: %w", domain.ErrInvalidDocument)
	}

	product := &domain.Product{
		Name:    name,
		Schema:  domain.DefaultEOSchema(),
		Grid:    domain.NoGrid{},
		AddedAt: added,
	}
	if desc, ok := doc.GetString(domain.DocPath{"description"}); ok {
		product.Description = desc
	}

	grid, err := gridFromDocument(doc, product.Schema)
	if err != nil {
		return nil, err
	}
	if grid != nil {
		product.Grid = grid
	}
	return product, nil
}

// gridFromDocument maps the optional grid section of a product
// definition to a grid spec.
func gridFromDocument(doc domain.Document, schema domain.MetadataSchema) (domain.GridSpec, error) {
	gridMap, ok := doc.GetMap(domain.DocPath{"grid"})
	if !ok {
		return nil, nil
	}
	grid := domain.Document(gridMap)

	kind, _ := grid.GetString(domain.DocPath{"kind"})
	switch kind {
	case "fixed":
		originX, originY, ok := floatPair(gridMap, "origin")
		if !ok {
			return nil, fmt.Errorf("fixed grid needs an [x, y] origin: %w", domain.ErrInvalidDocument)
		}
		tileW, tileH, ok := floatPair(gridMap, "tile_size")
		if !ok {
			return nil, fmt.Errorf("fixed grid needs a [width, height] tile_size: %w", domain.ErrInvalidDocument)
		}
		spec := domain.FixedGrid{OriginX: originX, OriginY: originY, TileWidth: tileW, TileHeight: tileH}
		if !spec.Valid() {
			return nil, fmt.Errorf("fixed grid tile_size must be positive: %w", domain.ErrInvalidDocument)
		}
		return spec, nil
	case "path_row":
		return domain.PathRowFields{Path: schema.PathField, Row: schema.RowField}, nil
	case "", "none":
		return domain.NoGrid{}, nil
	}
	return nil, fmt.Errorf("unknown grid kind %q: %w", kind, domain.ErrInvalidDocument)
}

// acquisitionTime reads the dataset's time range through the schema.
// One populated bound collapses the range to an instant; none is an
// invalid document, since a dataset without time cannot be bucketed.
func acquisitionTime(doc domain.Document, schema domain.MetadataSchema) (domain.TimeRange, error) {
	begin, okBegin := doc.GetTime(schema.TimeBegin)
	end, okEnd := doc.GetTime(schema.TimeEnd)
	switch {
	case okBegin && okEnd:
		return domain.NewTimeRange(begin, end), nil
	case okBegin:
		return domain.TimeRange{Begin: begin, End: begin}, nil
	case okEnd:
		return domain.TimeRange{Begin: end, End: end}, nil
	}
	return domain.TimeRange{}, fmt.Errorf("document has no acquisition time: %w", domain.ErrInvalidDocument)
}

// floatPair reads a two-element numeric array field.
func floatPair(m map[string]interface{}, field string) (float64, float64, bool) {
	raw, ok := m[field].([]interface{})
	if !ok || len(raw) != 2 {
		return 0, 0, false
	}
	a, okA := scalarFloat(raw[0])
	b, okB := scalarFloat(raw[1])
	if !okA || !okB {
		return 0, 0, false
	}
	return a, b, true
}

// scalarFloat coerces a decoded YAML or JSON number.
func scalarFloat(v interface{}) (float64, bool) {
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

// isMetadataKey reports whether a storage key looks like a metadata
// document.
func isMetadataKey(key string) bool {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
