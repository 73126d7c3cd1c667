package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/terradex/strata/internal/domain"
)

func newTestCoordinator(store *mockStore, cache *mockCache, cooldown time.Duration) *RefreshCoordinator {
	registry := NewProductRegistry(store, testLogger())
	geo := &mockGeometryOps{srids: map[string]int{"epsg:32655": 32655}}
	resolver := NewGeometryResolver(geo, testLogger())
	indexer := NewGridIndexer(testLogger())
	metrics := newMockMetrics()
	extents := NewExtentService(store, resolver, indexer, metrics, testLogger())
	aggregator := NewAggregator(geo, metrics, testLogger())
	summarizer := NewSummarizer(store, aggregator, metrics, testLogger(), DefaultSummarizerConfig())
	return NewRefreshCoordinator(registry, extents, summarizer, cache, testLogger(), cooldown)
}

func TestRefreshRunsPipelineAndInvalidatesCache(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()
	if _, err := store.UpsertProduct(ctx, newProduct("ls8_scenes")); err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	store.missing = []domain.Dataset{extentDataset(uuid.New(), nil)}

	cache := newMockCache()
	coordinator := newTestCoordinator(store, cache, 0)

	result, err := coordinator.Refresh(ctx, "ls8_scenes")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if result.Product != "ls8_scenes" {
		t.Errorf("result.Product = %q, want ls8_scenes", result.Product)
	}
	if result.ExtentsInserted != 1 {
		t.Errorf("ExtentsInserted = %d, want 1", result.ExtentsInserted)
	}
	// one day, one month, one year, one all-time
	if result.OverviewsWritten != 4 {
		t.Errorf("OverviewsWritten = %d, want 4", result.OverviewsWritten)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "ls8_scenes" {
		t.Errorf("cache invalidations = %v, want the refreshed product", cache.invalidated)
	}
}

func TestRefreshUnknownProduct(t *testing.T) {
	coordinator := newTestCoordinator(newMockStore(), newMockCache(), 0)

	_, err := coordinator.Refresh(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Refresh() error = %v, want ErrNotFound", err)
	}
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()
	for _, name := range []string{"alpha", "bravo"} {
		if _, err := store.UpsertProduct(ctx, newProduct(name)); err != nil {
			t.Fatalf("UpsertProduct() error = %v", err)
		}
	}
	// alpha sorts first and fails its overview write; bravo must still run.
	// The mock's putErr is global, so fail only while alpha is refreshing.
	cache := newMockCache()
	coordinator := newTestCoordinator(store, cache, 0)

	store.putErr = errors.New("disk full")
	if _, err := coordinator.Refresh(ctx, "alpha"); err == nil {
		t.Fatal("Refresh(alpha) should fail while the store rejects writes")
	}
	store.putErr = nil

	results, err := coordinator.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("RefreshAll() returned %d results, want 2", len(results))
	}
}

func TestTriggerRefreshCooldown(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()
	if _, err := store.UpsertProduct(ctx, newProduct("ls8_scenes")); err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}

	coordinator := newTestCoordinator(store, newMockCache(), time.Hour)
	if coordinator.Cooldown() != time.Hour {
		t.Errorf("Cooldown() = %v, want 1h", coordinator.Cooldown())
	}

	if _, err := coordinator.TriggerRefresh(ctx, "ls8_scenes"); err != nil {
		t.Fatalf("first TriggerRefresh() error = %v", err)
	}

	_, err := coordinator.TriggerRefresh(ctx, "ls8_scenes")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("second TriggerRefresh() error = %v, want ErrRateLimited", err)
	}

	// Other products are limited independently
	if _, err := store.UpsertProduct(ctx, newProduct("other")); err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	if _, err := coordinator.TriggerRefresh(ctx, "other"); err != nil {
		t.Errorf("TriggerRefresh(other) error = %v, want per-product cooldowns", err)
	}
}
