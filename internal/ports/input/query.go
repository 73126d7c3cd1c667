// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/terradex/strata/internal/domain"
)

// SummaryQuery defines the primary port for reading summaries.
type SummaryQuery interface {
	// ListProducts returns all products with their summary headlines.
	ListProducts(ctx context.Context) ([]ProductListing, error)

	// GetProduct returns one product with its summary headline.
	GetProduct(ctx context.Context, name string) (*ProductListing, error)

	// GetOverview returns the stored overview for a period, with the
	// footprint reprojected for display.
	GetOverview(ctx context.Context, name string, key OverviewKey) (*OverviewView, error)

	// ListExtents returns a product's extent rows for export. A limit
	// of 0 means no limit.
	ListExtents(ctx context.Context, name string, limit int) ([]domain.DatasetExtent, error)
}

// OverviewKey addresses one overview of a product. The zero value
// addresses the all-time overview.
type OverviewKey struct {
	Period   domain.Period
	StartDay domain.Date
}

// AllTimeKey returns the key of the all-time overview.
func AllTimeKey() OverviewKey {
	return OverviewKey{Period: domain.PeriodAll, StartDay: domain.AllTimeStart}
}

// ProductListing is a product with its all-time headline numbers.
type ProductListing struct {
	Product      domain.Product   // The product definition
	DatasetCount int              // Datasets summarized all-time
	TimeRange    domain.TimeRange // Acquisition range all-time
	Periods      int              // Number of stored overviews
}

// OverviewView is one overview prepared for presentation.
type OverviewView struct {
	Key              OverviewKey                // The addressed period
	Overview         *domain.TimePeriodOverview // Stored overview
	DisplayFootprint orb.Geometry               // Reprojected footprint, nil when unavailable
	DisplaySRID      int                        // CRS of DisplayFootprint
}

// RefreshService defines the primary port for recomputation. Nothing
// here runs on a schedule; callers decide when.
type RefreshService interface {
	// Refresh recomputes extents and overviews for one product.
	Refresh(ctx context.Context, product string) (*RefreshResult, error)

	// RefreshAll recomputes every product in turn.
	RefreshAll(ctx context.Context) ([]RefreshResult, error)
}

// RefreshResult reports one product recomputation.
type RefreshResult struct {
	Product          string        // Product name
	ExtentsInserted  int           // New extent rows
	OverviewsWritten int           // Overview rows stored
	Took             time.Duration // Wall time of the run
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	Products   int               // Registered products
	Components map[string]string // Component statuses
}
