package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// creationDatePath is the conventional document field for dataset
// creation time, consulted when the product schema maps no creation
// offset.
var creationDatePath = domain.DocPath{"creation_dt"}

// sizeBytesPath locates the dataset's payload size in its document.
var sizeBytesPath = domain.DocPath{"size_bytes"}

// ExtentService derives per-dataset spatial extent rows from catalog
// documents and persists the ones not yet stored. Refresh is
// incremental and idempotent: datasets that already have an extent row
// are never re-derived or overwritten.
type ExtentService struct {
	store    output.Store
	resolver *GeometryResolver
	indexer  *GridIndexer
	metrics  output.MetricsCollector
	logger   *slog.Logger
}

// NewExtentService creates a new extent service.
func NewExtentService(store output.Store, resolver *GeometryResolver, indexer *GridIndexer, metrics output.MetricsCollector, logger *slog.Logger) *ExtentService {
	return &ExtentService{
		store:    store,
		resolver: resolver,
		indexer:  indexer,
		metrics:  metrics,
		logger:   logger,
	}
}

// Refresh derives and inserts extent rows for every dataset of the
// product that is missing one, returning the number inserted. A
// dataset with unresolvable geometry, CRS or grid cell still gets a
// row; only the affected columns stay absent.
func (s *ExtentService) Refresh(ctx context.Context, product *domain.Product) (int, error) {
	datasets, err := s.store.DatasetsMissingExtent(ctx, product.Name)
	if err != nil {
		return 0, &domain.StoreError{Operation: "list missing extents", Entity: product.Name, Err: err}
	}
	if len(datasets) == 0 {
		return 0, nil
	}

	extents := make([]domain.DatasetExtent, 0, len(datasets))
	for i := range datasets {
		extent, err := s.buildExtent(ctx, product, &datasets[i])
		if err != nil {
			return 0, err
		}
		extents = append(extents, extent)
	}

	inserted, err := s.store.InsertExtents(ctx, extents)
	if err != nil {
		return 0, &domain.StoreError{Operation: "insert extents", Entity: product.Name, Err: err}
	}

	s.metrics.IncDatasetsIndexed(product.Name, inserted)
	s.logger.Info("extent refresh complete",
		"product", product.Name, "candidates", len(datasets), "inserted", inserted)
	return inserted, nil
}

// buildExtent derives one extent row. Document-level problems degrade
// to absent columns with a diagnostic; only geometry engine failures
// propagate as errors.
func (s *ExtentService) buildExtent(ctx context.Context, product *domain.Product, ds *domain.Dataset) (domain.DatasetExtent, error) {
	footprint, srid, err := s.resolver.Resolve(ctx, ds.Document, product.Schema)
	if err != nil {
		return domain.DatasetExtent{}, err
	}

	cell, err := s.indexer.Cell(ds.Document, product.Schema, product.Grid)
	if err != nil {
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			return domain.DatasetExtent{}, err
		}
		s.logger.Warn("dataset grid cell rejected",
			"dataset", ds.ID, "product", product.Name, "error", err)
		cell = nil
	}

	extent := domain.DatasetExtent{
		ID:           ds.ID,
		ProductRef:   product.ID,
		CenterTime:   ds.Time.Center(),
		CreationTime: s.creationTime(product, ds),
		Footprint:    footprint,
		SRID:         srid,
		GridCell:     cell,
	}

	if size, ok := ds.Document.GetFloat(sizeBytesPath); ok && size >= 0 {
		bytes := int64(size)
		extent.SizeBytes = &bytes
	}
	return extent, nil
}

// creationTime resolves when the dataset was created: the schema's
// mapped offset first, then the conventional document field, then the
// catalog's record of when the dataset was added.
func (s *ExtentService) creationTime(product *domain.Product, ds *domain.Dataset) time.Time {
	if !product.Schema.Created.IsZero() {
		if t, ok := ds.Document.GetTime(product.Schema.Created); ok {
			return t
		}
	}
	if t, ok := ds.Document.GetTime(creationDatePath); ok {
		return t
	}
	return ds.Added
}
