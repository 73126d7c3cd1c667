package application

import (
	"context"

	"github.com/terradex/strata/internal/ports/input"
	"github.com/terradex/strata/internal/ports/output"
)

// HealthService provides health check functionality over the service's
// backing components.
type HealthService struct {
	registry *ProductRegistry
	store    output.Store
	geo      output.GeometryOps
	cache    output.ResponseCache
}

// NewHealthService creates a new health service.
func NewHealthService(registry *ProductRegistry, store output.Store, geo output.GeometryOps, cache output.ResponseCache) *HealthService {
	return &HealthService{
		registry: registry,
		store:    store,
		geo:      geo,
		cache:    cache,
	}
}

// IsHealthy returns true if the process is up and serving.
func (s *HealthService) IsHealthy(ctx context.Context) bool {
	return true
}

// IsReady returns true if the store and geometry engine answer pings.
// The cache is an accelerator; its loss never makes the service
// unready.
func (s *HealthService) IsReady(ctx context.Context) bool {
	if err := s.store.Ping(ctx); err != nil {
		return false
	}
	if err := s.geo.Ping(ctx); err != nil {
		return false
	}
	return true
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"store":           componentStatus(s.store.Ping(ctx)),
		"geometry_engine": componentStatus(s.geo.Ping(ctx)),
		"cache":           componentStatus(s.cache.Ping(ctx)),
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		Products:   s.registry.Count(),
		Components: components,
	}
}

// componentStatus renders a ping result for the health response.
func componentStatus(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
