package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/input"
	"github.com/terradex/strata/internal/ports/output"
)

// SummaryQueryService serves read queries over stored overviews and
// extent rows. It never computes summaries; missing overviews mean the
// product has not been summarized yet.
type SummaryQueryService struct {
	registry    *ProductRegistry
	store       output.Store
	reprojector *GeometryReprojector
	logger      *slog.Logger
}

// NewSummaryQueryService creates a new summary query service.
func NewSummaryQueryService(registry *ProductRegistry, store output.Store, reprojector *GeometryReprojector, logger *slog.Logger) *SummaryQueryService {
	return &SummaryQueryService{
		registry:    registry,
		store:       store,
		reprojector: reprojector,
		logger:      logger,
	}
}

// ListProducts returns all products with their all-time headlines.
func (s *SummaryQueryService) ListProducts(ctx context.Context) ([]input.ProductListing, error) {
	products, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	listings := make([]input.ProductListing, 0, len(products))
	for i := range products {
		listing, err := s.listing(ctx, &products[i])
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}
	return listings, nil
}

// GetProduct returns one product with its all-time headline.
func (s *SummaryQueryService) GetProduct(ctx context.Context, name string) (*input.ProductListing, error) {
	product, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.listing(ctx, product)
}

// GetOverview returns the stored overview for a period with its
// footprint reprojected for display. A zero key addresses the
// all-time overview.
func (s *SummaryQueryService) GetOverview(ctx context.Context, name string, key input.OverviewKey) (*input.OverviewView, error) {
	product, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	if key.Period == "" {
		key = input.AllTimeKey()
	}
	if !key.Period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}

	overview, err := s.store.GetOverview(ctx, product.ID, output.PeriodKey{
		Period:   key.Period,
		StartDay: key.StartDay,
	})
	if err != nil {
		return nil, err
	}

	view := &input.OverviewView{Key: key, Overview: overview}

	display, err := s.reprojector.ToDisplay(ctx, overview.Footprint, overview.FootprintCRS)
	if err != nil {
		return nil, err
	}
	if display != nil {
		view.DisplayFootprint = display
		view.DisplaySRID = domain.SRIDWGS84
	}
	return view, nil
}

// ListExtents returns a product's extent rows for export.
func (s *SummaryQueryService) ListExtents(ctx context.Context, name string, limit int) ([]domain.DatasetExtent, error) {
	product, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ExtentsForProduct(ctx, product.ID, limit)
	if err != nil {
		return nil, &domain.StoreError{Operation: "list extents", Entity: name, Err: err}
	}
	return rows, nil
}

// listing assembles a product's headline from its all-time overview.
// A product that was never summarized lists with zero counts.
func (s *SummaryQueryService) listing(ctx context.Context, product *domain.Product) (*input.ProductListing, error) {
	listing := &input.ProductListing{Product: *product}

	keys, err := s.store.ListPeriods(ctx, product.ID)
	if err != nil {
		return nil, &domain.StoreError{Operation: "list periods", Entity: product.Name, Err: err}
	}
	listing.Periods = len(keys)

	allTime, err := s.store.GetOverview(ctx, product.ID, output.PeriodKey{
		Period:   domain.PeriodAll,
		StartDay: domain.AllTimeStart,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return listing, nil
		}
		return nil, err
	}

	listing.DatasetCount = allTime.DatasetCount
	listing.TimeRange = allTime.TimeRange
	return listing, nil
}
