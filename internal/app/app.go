// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/terradex/strata/internal/adapters/cache"
	httpAdapter "github.com/terradex/strata/internal/adapters/http"
	"github.com/terradex/strata/internal/adapters/metrics"
	"github.com/terradex/strata/internal/adapters/spatialite"
	"github.com/terradex/strata/internal/adapters/storage"
	"github.com/terradex/strata/internal/adapters/store"
	tlsAdapter "github.com/terradex/strata/internal/adapters/tls"
	"github.com/terradex/strata/internal/adapters/watcher"
	"github.com/terradex/strata/internal/application"
	"github.com/terradex/strata/internal/config"
	"github.com/terradex/strata/internal/ports/input"
	"github.com/terradex/strata/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *store.Store
	Geometry   *spatialite.Engine
	Cache      output.ResponseCache
	Storage    output.ObjectStorage
	Registry   *application.ProductRegistry
	Ingest     *application.IngestService
	Summarizer *application.Summarizer
	Refresher  *application.RefreshCoordinator
	Query      *application.SummaryQueryService
	Health     *application.HealthService
	HTTPServer *httpAdapter.Server
	TLSServer  *tlsAdapter.Server
	Watcher    *watcher.Watcher
	Metrics    *metrics.Collector
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("strata")
		metricsCollector = app.Metrics
	} else {
		metricsCollector = &output.NoOpMetrics{}
	}

	// Initialize the summary store
	summaryStore, err := initStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	app.Store = summaryStore

	// Initialize the geometry engine
	engine, err := spatialite.NewEngine(ctx)
	if err != nil {
		_ = summaryStore.Close()
		return nil, fmt.Errorf("initializing geometry engine: %w", err)
	}
	app.Geometry = engine

	// Initialize the response cache
	if cfg.Cache.Enabled {
		redisCache, err := cache.New(ctx, cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}, metricsCollector, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing cache: %w", err)
		}
		app.Cache = redisCache
	} else {
		app.Cache = &output.NoOpCache{}
	}

	// Initialize document storage
	docStorage, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = docStorage

	// Initialize application services
	app.Registry = application.NewProductRegistry(summaryStore, logger)
	app.Ingest = application.NewIngestService(app.Registry, summaryStore, docStorage, metricsCollector, logger)

	resolver := application.NewGeometryResolver(engine, logger)
	indexer := application.NewGridIndexer(logger)
	extents := application.NewExtentService(summaryStore, resolver, indexer, metricsCollector, logger)

	aggregator := application.NewAggregator(engine, metricsCollector, logger)
	app.Summarizer = application.NewSummarizer(summaryStore, aggregator, metricsCollector, logger,
		application.SummarizerConfig{
			SimplifyTolerance: cfg.Summary.SimplifyTolerance,
		})

	app.Refresher = application.NewRefreshCoordinator(
		app.Registry, extents, app.Summarizer, app.Cache, logger, cfg.Summary.RefreshCooldown)

	reprojector := application.NewGeometryReprojector(engine, logger)
	app.Query = application.NewSummaryQueryService(app.Registry, summaryStore, reprojector, logger)
	app.Health = application.NewHealthService(app.Registry, summaryStore, engine, app.Cache)

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		cfg.Metrics,
		app.Query,
		app.Health,
		app.Refresher,
		app.Cache,
		cfg.Cache.TTL,
		app.Metrics,
		logger,
	)

	// Initialize TLS server if enabled
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Enabled:  cfg.TLS.Enabled,
				CertFile: cfg.TLS.CertFile,
				KeyFile:  cfg.TLS.KeyFile,
				Domains:  cfg.TLS.Domains,
				Email:    cfg.TLS.Email,
				CacheDir: cfg.TLS.CacheDir,
				Staging:  cfg.TLS.Staging,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Initialize document watcher. Only local storage has a file system
	// to watch.
	if cfg.Watcher.Enabled && cfg.Storage.Type == "local" {
		w, err := watcher.New(
			watcher.Config{
				Paths:    []string{cfg.Storage.LocalPath},
				Debounce: cfg.Watcher.Debounce,
			},
			app.handleDocumentEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize document watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start starts all application components.
func (a *App) Start(ctx context.Context) error {
	// Load registered products
	if err := a.Registry.Reload(ctx); err != nil {
		a.Logger.Warn("failed to load products", "error", err)
	}

	// Start document watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start document watcher", "error", err)
		}
	}

	// Start server
	if a.Config.TLS.Enabled && a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	// Stop watcher
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	// Shutdown HTTP server
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := a.Cache.Close(); err != nil {
		a.Logger.Error("cache close error", "error", err)
	}
	if err := a.Geometry.Close(); err != nil {
		a.Logger.Error("geometry engine close error", "error", err)
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("store close error", "error", err)
	}

	return nil
}

// IngestAll loads every metadata document from storage into the catalog.
func (a *App) IngestAll(ctx context.Context) (application.IngestStats, error) {
	if err := a.Registry.Reload(ctx); err != nil {
		return application.IngestStats{}, err
	}
	return a.Ingest.IngestAll(ctx)
}

// Refresh recomputes extents and overviews for one product.
func (a *App) Refresh(ctx context.Context, product string) (*input.RefreshResult, error) {
	if err := a.Registry.Reload(ctx); err != nil {
		return nil, err
	}
	return a.Refresher.Refresh(ctx, product)
}

// Summarize rebuilds the overview pyramid of one product from its
// stored extent rows, without deriving new extents.
func (a *App) Summarize(ctx context.Context, product string) (int, error) {
	if err := a.Registry.Reload(ctx); err != nil {
		return 0, err
	}
	p, err := a.Registry.Get(ctx, product)
	if err != nil {
		return 0, err
	}
	_, written, err := a.Summarizer.Summarize(ctx, p)
	if err != nil {
		return 0, err
	}
	if err := a.Cache.InvalidateProduct(ctx, product); err != nil {
		a.Logger.Warn("cache invalidation failed", "product", product, "error", err)
	}
	return written, nil
}

// SummarizeAll rebuilds the overview pyramids of every registered
// product. Individual failures are logged and skipped.
func (a *App) SummarizeAll(ctx context.Context) (map[string]int, error) {
	if err := a.Registry.Reload(ctx); err != nil {
		return nil, err
	}
	products, err := a.Registry.List(ctx)
	if err != nil {
		return nil, err
	}

	written := make(map[string]int, len(products))
	for i := range products {
		_, n, err := a.Summarizer.Summarize(ctx, &products[i])
		if err != nil {
			a.Logger.Error("product summarize failed",
				"product", products[i].Name, "error", err)
			continue
		}
		if err := a.Cache.InvalidateProduct(ctx, products[i].Name); err != nil {
			a.Logger.Warn("cache invalidation failed",
				"product", products[i].Name, "error", err)
		}
		written[products[i].Name] = n
	}
	return written, nil
}

// RefreshAll recomputes every registered product.
func (a *App) RefreshAll(ctx context.Context) ([]input.RefreshResult, error) {
	if err := a.Registry.Reload(ctx); err != nil {
		return nil, err
	}
	return a.Refresher.RefreshAll(ctx)
}

// handleDocumentEvent ingests changed metadata documents and refreshes
// the owning product. Deletions are ignored; the catalog is additive.
func (a *App) handleDocumentEvent(ctx context.Context, event watcher.Event) error {
	a.Logger.Info("document event", "path", event.Path, "operation", event.Operation.String())

	if event.Operation == watcher.OpDelete {
		return nil
	}

	key, err := filepath.Rel(a.Config.Storage.LocalPath, event.Path)
	if err != nil {
		key = event.Path
	}
	key = filepath.ToSlash(key)
	if strings.HasPrefix(key, "..") {
		a.Logger.Warn("document outside storage root ignored", "path", event.Path)
		return nil
	}

	product, err := a.Ingest.IngestObject(ctx, key)
	if err != nil {
		return err
	}
	if product == "" {
		return nil
	}

	_, err = a.Refresher.Refresh(ctx, product)
	return err
}

// initStore opens the configured summary store backend.
func initStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.SQLitePath, logger)
	case "postgres":
		return store.OpenPostgres(ctx, cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown database backend: %s", cfg.Backend)
	}
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
