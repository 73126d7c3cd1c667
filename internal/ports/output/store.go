package output

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/terradex/strata/internal/domain"
)

// Catalog defines the secondary port for product and dataset records.
type Catalog interface {
	// UpsertProduct inserts or updates a product by name and returns
	// its store-assigned reference id.
	UpsertProduct(ctx context.Context, product *domain.Product) (int, error)

	// GetProduct returns a product by name.
	GetProduct(ctx context.Context, name string) (*domain.Product, error)

	// ListProducts returns all registered products ordered by name.
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// UpsertDataset inserts a dataset record, replacing the document
	// and archived flag if the id already exists.
	UpsertDataset(ctx context.Context, dataset *domain.Dataset) error

	// GetDataset returns one dataset by id.
	GetDataset(ctx context.Context, id uuid.UUID) (*domain.Dataset, error)

	// DatasetsMissingExtent returns the non-archived datasets of a
	// product that have no extent row yet.
	DatasetsMissingExtent(ctx context.Context, product string) ([]domain.Dataset, error)

	// CountDatasets returns the number of non-archived datasets of a
	// product.
	CountDatasets(ctx context.Context, product string) (int, error)
}

// ExtentStore defines the secondary port for derived extent rows.
type ExtentStore interface {
	// InsertExtents inserts the given rows in one transaction,
	// silently skipping any whose dataset id is already present.
	// Returns the number of rows actually inserted.
	InsertExtents(ctx context.Context, rows []domain.DatasetExtent) (int, error)

	// ExtentsForProduct returns all extent rows of a product ordered
	// by center time. A limit of 0 means no limit.
	ExtentsForProduct(ctx context.Context, productRef int, limit int) ([]domain.DatasetExtent, error)

	// ExtentsForPeriod returns the extent rows whose center time falls
	// in [start, end), ordered by center time. A zero start or end
	// leaves that side unbounded.
	ExtentsForPeriod(ctx context.Context, productRef int, start, end time.Time) ([]domain.DatasetExtent, error)

	// CountExtents returns the number of extent rows of a product.
	CountExtents(ctx context.Context, productRef int) (int, error)
}

// PeriodKey identifies one stored overview of a product.
type PeriodKey struct {
	Period   domain.Period // Overview granularity
	StartDay domain.Date   // Bucket start
}

// OverviewStore defines the secondary port for period overviews.
type OverviewStore interface {
	// PutOverview stores an overview under its key, fully replacing
	// any previous row for that key.
	PutOverview(ctx context.Context, productRef int, key PeriodKey, overview *domain.TimePeriodOverview) error

	// GetOverview returns the overview stored under a key, or
	// domain.ErrOverviewNotFound.
	GetOverview(ctx context.Context, productRef int, key PeriodKey) (*domain.TimePeriodOverview, error)

	// ListPeriods returns the keys of all stored overviews of a
	// product, coarsest first, then by start day.
	ListPeriods(ctx context.Context, productRef int) ([]PeriodKey, error)
}

// Store combines the persistence ports with connection lifecycle.
// Both database backends implement the full interface.
type Store interface {
	Catalog
	ExtentStore
	OverviewStore

	// Ping verifies the underlying connection.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
