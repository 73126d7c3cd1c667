// Package application contains the application services.
package application

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// ProductRegistry caches registered products for name lookups on the
// query path. The store stays authoritative; the cache is reloaded
// after every ingest and refreshed on miss.
type ProductRegistry struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	store    output.Catalog
	logger   *slog.Logger
}

// NewProductRegistry creates a new product registry.
func NewProductRegistry(store output.Catalog, logger *slog.Logger) *ProductRegistry {
	return &ProductRegistry{
		products: make(map[string]*domain.Product),
		store:    store,
		logger:   logger,
	}
}

// Reload replaces the cache with the catalog's current products.
func (r *ProductRegistry) Reload(ctx context.Context) error {
	products, err := r.store.ListProducts(ctx)
	if err != nil {
		return &domain.StoreError{Operation: "list products", Err: err}
	}

	next := make(map[string]*domain.Product, len(products))
	for i := range products {
		next[products[i].Name] = &products[i]
	}

	r.mu.Lock()
	r.products = next
	r.mu.Unlock()

	r.logger.Debug("product registry reloaded", "products", len(next))
	return nil
}

// Get returns a product by name, falling back to the catalog on a
// cache miss.
func (r *ProductRegistry) Get(ctx context.Context, name string) (*domain.Product, error) {
	r.mu.RLock()
	product, ok := r.products[name]
	r.mu.RUnlock()
	if ok {
		return product, nil
	}

	product, err := r.store.GetProduct(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.products[name] = product
	r.mu.Unlock()
	return product, nil
}

// List returns all registered products ordered by name.
func (r *ProductRegistry) List(ctx context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	empty := len(r.products) == 0
	r.mu.RUnlock()
	if empty {
		if err := r.Reload(ctx); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]domain.Product, 0, len(r.products))
	for _, product := range r.products {
		products = append(products, *product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

// Register upserts a product into the catalog and caches it with its
// store-assigned reference id.
func (r *ProductRegistry) Register(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	ref, err := r.store.UpsertProduct(ctx, product)
	if err != nil {
		return nil, &domain.StoreError{Operation: "upsert product", Entity: product.Name, Err: err}
	}
	product.ID = ref

	r.mu.Lock()
	r.products[product.Name] = product
	r.mu.Unlock()

	r.logger.Info("product registered", "product", product.Name, "ref", ref)
	return product, nil
}

// Count returns the number of cached products.
func (r *ProductRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.products)
}
