package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/fetch"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/normalizer"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/parser"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/repository"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/service"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/observability"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/config"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/db"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/notify"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *db.DB // only set for the postgres store driver

	Store    repository.Store
	Objects  storage.Storage
	Registry *parser.Registry
	Fetcher  fetch.Fetcher
	Metrics  *observability.Metrics
	Notifier *notify.Notifier

	IngestService *service.IngestService
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	if err := deps.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	if err := deps.initParsers(); err != nil {
		return nil, fmt.Errorf("failed to init parsers: %w", err)
	}

	deps.initServices()

	logger.Debug("all dependencies initialized successfully")
	return deps, nil
}

// initStore connects the catalog store for the configured driver
func (d *Dependencies) initStore(ctx context.Context) error {
	switch d.Config.Store.Driver {
	case config.StoreDriverPostgres:
		database, err := db.New(ctx, db.Config{
			DSN:             d.Config.Database.DSN(),
			MaxConns:        int32(d.Config.Database.MaxConns),
			MaxConnLifetime: 30 * time.Minute,
			ApplicationName: "catalog-ingest",
		}, d.Logger)
		if err != nil {
			return err
		}
		if err := database.RunMigrations(ctx); err != nil {
			database.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		d.DB = database
		d.Store = repository.NewPostgresStore(database.Pool)

	default:
		d.Store = repository.NewPostgRESTStore(repository.PostgRESTConfig{
			BaseURL:           d.Config.Store.SupabaseURL,
			APIKey:            d.Config.Store.ServiceKey,
			CatalogTable:      d.Config.Store.CatalogTable,
			SuppliersTable:    d.Config.Store.SuppliersTable,
			Timeout:           d.Config.Store.Timeout,
			RequestsPerSecond: d.Config.Store.RequestsPerSecond,
		}, d.Logger)
	}

	d.Logger.Debug("catalog store ready", "driver", d.Config.Store.Driver)
	return nil
}

// initStorage opens object storage for source documents and archives
func (d *Dependencies) initStorage() error {
	objects, err := storage.New(&storage.Config{
		Type:              storage.StorageType(d.Config.Storage.Type),
		LocalPath:         d.Config.Storage.LocalPath,
		SupabaseURL:       d.Config.Store.SupabaseURL,
		ServiceKey:        d.Config.Store.ServiceKey,
		Bucket:            d.Config.Storage.Bucket,
		RequestsPerSecond: d.Config.Store.RequestsPerSecond,
		Timeout:           d.Config.Fetch.Timeout,
	})
	if err != nil {
		return err
	}
	d.Objects = objects
	return nil
}

// initParsers registers the built-in layouts plus any from LAYOUTS_FILE
func (d *Dependencies) initParsers() error {
	layouts := parser.BuiltinLayouts()
	if path := d.Config.Run.LayoutsFile; path != "" {
		extra, err := parser.LoadLayouts(path)
		if err != nil {
			return err
		}
		maps.Copy(layouts, extra)
		d.Logger.Info("loaded supplier layouts", "file", path, "suppliers", len(extra))
	}

	d.Registry = parser.NewLayoutRegistry(layouts, normalizer.NewRepairer(nil), d.Logger)
	return nil
}

// initServices wires the fetchers, metrics, notifier and ingest service
func (d *Dependencies) initServices() {
	d.Fetcher = fetch.NewSourceFetcher(
		fetch.NewHTTPFetcher(d.Config.Fetch.Timeout, d.Config.Fetch.MaxBytes, d.Logger),
		fetch.NewStorageFetcher(d.Objects, d.Config.Fetch.MaxBytes),
	)

	d.Metrics = observability.NewMetrics()
	d.Notifier = notify.NewNotifier(d.Config.Notify.ResendAPIKey, d.Config.Notify.From, d.Config.Notify.To, d.Logger)

	d.IngestService = service.NewIngestService(d.Registry, d.Fetcher, d.Store, service.Options{
		BatchSize:       d.Config.Batch.Size,
		FlushEveryPages: d.Config.Batch.FlushEveryPages,
		ArchiveParsed:   d.Config.Storage.ArchiveParsed,
		PushgatewayURL:  d.Config.Observability.PushgatewayURL,
	}, d.Logger).
		WithArchive(d.Objects).
		WithMetrics(d.Metrics)

	if d.Notifier.Enabled() {
		d.IngestService.WithNotifier(d.Notifier)
	}
}

// Close releases the database pool, if any
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
