// Package main provides the entry point for the Strata summary service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terradex/strata/internal/app"
	"github.com/terradex/strata/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - Geospatial Dataset Summary Service",
	Long: `Strata summarizes geospatial dataset catalogs into per-period
overviews: dataset counts, timeline and region histograms, and combined
footprint outlines.

Features:
  - Hierarchical overviews (day, month, year, all-time)
  - Footprint unions with CRS-aware reprojection for display
  - Metadata ingest from local, AWS S3, Azure, or HTTP storage
  - SQLite or PostgreSQL summary store
  - Redis response cache
  - TLS with automatic certificate management
  - Prometheus metrics`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServer,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load metadata documents from storage into the catalog",
	RunE:  runIngest,
}

var refreshAll bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [product]",
	Short: "Recompute extents and overviews",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRefresh,
}

var summarizeAll bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize [product]",
	Short: "Rebuild overviews from stored extents",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSummarize,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("Strata %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./strata.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8080, "server port")
	serveCmd.Flags().Bool("tls", false, "enable TLS")
	serveCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	serveCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	serveCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Storage and store flags, shared by serve/ingest/refresh
	rootCmd.PersistentFlags().String("storage-type", "local", "storage type (local, s3, azure, http)")
	rootCmd.PersistentFlags().String("storage-path", "./data", "local storage path")
	rootCmd.PersistentFlags().String("db", "sqlite", "database backend (sqlite, postgres)")
	rootCmd.PersistentFlags().String("db-path", "./strata.db", "sqlite database path")

	refreshCmd.Flags().BoolVar(&refreshAll, "all", false, "refresh every registered product")
	summarizeCmd.Flags().BoolVar(&summarizeAll, "all", false, "summarize every registered product")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", serveCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", serveCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", serveCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("server.cors.allowed_origins", serveCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local_path", rootCmd.PersistentFlags().Lookup("storage-path"))
	_ = viper.BindPFlag("database.backend", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("database.sqlite_path", rootCmd.PersistentFlags().Lookup("db-path"))

	rootCmd.AddCommand(serveCmd, ingestCmd, refreshCmd, summarizeCmd, versionCmd)
}

func initConfig() {
	// A .env file is optional and never an error when missing
	_ = godotenv.Load()

	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// setup loads configuration and initializes the application.
func setup(ctx context.Context) (*app.App, *config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return application, cfg, logger, nil
}

func runServer(_ *cobra.Command, _ []string) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, cfg, logger, err := setup(ctx)
	if err != nil {
		return err
	}

	logger.Info("starting Strata",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Backend,
		"storage_type", cfg.Storage.Type,
	)

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		cancel()
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runIngest(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	application, _, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdownQuietly(application, logger)

	stats, err := application.IngestAll(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf("Ingested %d product(s) and %d dataset(s), skipped %d document(s)\n",
		stats.ProductsUpserted, stats.DatasetsUpserted, stats.Skipped)
	return nil
}

func runRefresh(_ *cobra.Command, args []string) error {
	if !refreshAll && len(args) == 0 {
		return fmt.Errorf("a product name or --all is required")
	}

	ctx := context.Background()

	application, _, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdownQuietly(application, logger)

	if refreshAll {
		results, err := application.RefreshAll(ctx)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		for _, r := range results {
			printRefreshResult(r.Product, r.ExtentsInserted, r.OverviewsWritten, r.Took)
		}
		return nil
	}

	result, err := application.Refresh(ctx, args[0])
	if err != nil {
		return fmt.Errorf("refresh %s: %w", args[0], err)
	}
	printRefreshResult(result.Product, result.ExtentsInserted, result.OverviewsWritten, result.Took)
	return nil
}

func runSummarize(_ *cobra.Command, args []string) error {
	if !summarizeAll && len(args) == 0 {
		return fmt.Errorf("a product name or --all is required")
	}

	ctx := context.Background()

	application, _, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdownQuietly(application, logger)

	if summarizeAll {
		written, err := application.SummarizeAll(ctx)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		for product, n := range written {
			fmt.Printf("%s: %d overview(s) written\n", product, n)
		}
		return nil
	}

	written, err := application.Summarize(ctx, args[0])
	if err != nil {
		return fmt.Errorf("summarize %s: %w", args[0], err)
	}
	fmt.Printf("%s: %d overview(s) written\n", args[0], written)
	return nil
}

func printRefreshResult(product string, extents, overviews int, took time.Duration) {
	fmt.Printf("%s: %d extent(s) inserted, %d overview(s) written in %s\n",
		product, extents, overviews, took.Round(time.Millisecond))
}

func shutdownQuietly(application *app.App, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
