package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/terradex/strata/internal/ports/input"
	"github.com/terradex/strata/internal/ports/output"
)

// ErrRateLimited is returned when an API-triggered refresh lands
// inside the cooldown window of the previous one.
var ErrRateLimited = errors.New("rate limit exceeded")

// RefreshCoordinator runs extent refresh followed by summarization for
// a product. Runs for the same product are serialized; different
// products refresh independently.
type RefreshCoordinator struct {
	registry   *ProductRegistry
	extents    *ExtentService
	summarizer *Summarizer
	cache      output.ResponseCache
	logger     *slog.Logger
	cooldown   time.Duration

	// Rate limiting for API triggers, per product
	apiMu       sync.Mutex
	lastTrigger map[string]time.Time

	// Serializes runs of the same product
	runMu sync.Mutex
	runs  map[string]*sync.Mutex
}

// NewRefreshCoordinator creates a new refresh coordinator.
func NewRefreshCoordinator(
	registry *ProductRegistry,
	extents *ExtentService,
	summarizer *Summarizer,
	cache output.ResponseCache,
	logger *slog.Logger,
	cooldown time.Duration,
) *RefreshCoordinator {
	return &RefreshCoordinator{
		registry:    registry,
		extents:     extents,
		summarizer:  summarizer,
		cache:       cache,
		logger:      logger,
		cooldown:    cooldown,
		lastTrigger: make(map[string]time.Time),
		runs:        make(map[string]*sync.Mutex),
	}
}

// Refresh recomputes extents and overviews for one product.
func (c *RefreshCoordinator) Refresh(ctx context.Context, name string) (*input.RefreshResult, error) {
	product, err := c.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	lock := c.productLock(name)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()

	inserted, err := c.extents.Refresh(ctx, product)
	if err != nil {
		return nil, err
	}

	_, written, err := c.summarizer.Summarize(ctx, product)
	if err != nil {
		return nil, err
	}

	if err := c.cache.InvalidateProduct(ctx, name); err != nil {
		c.logger.Warn("cache invalidation failed", "product", name, "error", err)
	}

	result := &input.RefreshResult{
		Product:          name,
		ExtentsInserted:  inserted,
		OverviewsWritten: written,
		Took:             time.Since(started),
	}
	c.logger.Info("refresh complete",
		"product", name,
		"extents_inserted", inserted,
		"overviews_written", written,
		"took", result.Took)
	return result, nil
}

// RefreshAll recomputes every registered product in turn. Individual
// product failures are logged and skipped so one bad product cannot
// starve the rest.
func (c *RefreshCoordinator) RefreshAll(ctx context.Context) ([]input.RefreshResult, error) {
	products, err := c.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]input.RefreshResult, 0, len(products))
	for i := range products {
		result, err := c.Refresh(ctx, products[i].Name)
		if err != nil {
			c.logger.Error("product refresh failed",
				"product", products[i].Name, "error", err)
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// TriggerRefresh runs a refresh on behalf of an API caller, enforcing
// a per-product cooldown. Returns ErrRateLimited inside the window.
func (c *RefreshCoordinator) TriggerRefresh(ctx context.Context, name string) (*input.RefreshResult, error) {
	c.apiMu.Lock()
	if time.Since(c.lastTrigger[name]) < c.cooldown {
		c.apiMu.Unlock()
		return nil, ErrRateLimited
	}
	c.lastTrigger[name] = time.Now()
	c.apiMu.Unlock()

	return c.Refresh(ctx, name)
}

// Cooldown returns the API trigger cooldown.
func (c *RefreshCoordinator) Cooldown() time.Duration {
	return c.cooldown
}

// productLock returns the mutex guarding runs of one product.
func (c *RefreshCoordinator) productLock(name string) *sync.Mutex {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	lock, ok := c.runs[name]
	if !ok {
		lock = &sync.Mutex{}
		c.runs[name] = lock
	}
	return lock
}
