// Package app initializes and holds the long-lived services of a mirror run,
// acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-mirror/internal/archive"
	"github.com/JakeFAU/wayback-mirror/internal/clock/system"
	"github.com/JakeFAU/wayback-mirror/internal/config"
	"github.com/JakeFAU/wayback-mirror/internal/crawler"
	collyfetcher "github.com/JakeFAU/wayback-mirror/internal/fetcher/colly"
	"github.com/JakeFAU/wayback-mirror/internal/hash/sha256"
	"github.com/JakeFAU/wayback-mirror/internal/id/uuid"
	"github.com/JakeFAU/wayback-mirror/internal/progress"
	"github.com/JakeFAU/wayback-mirror/internal/progress/sinks"
	"github.com/JakeFAU/wayback-mirror/internal/storage/gcs"
	"github.com/JakeFAU/wayback-mirror/internal/storage/local"
	"github.com/JakeFAU/wayback-mirror/internal/storage/memory"
)

// App holds the services shared by one invocation: the blob store, the
// progress hub with its sinks, the metrics registry and the crawl engine.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    crawler.BlobStore
	closers  []func() error
	hub      *progress.Hub
	registry *prometheus.Registry
	engine   *crawler.Engine
}

// Option customizes New; tests use it to swap collaborators.
type Option func(*options)

type options struct {
	store crawler.BlobStore
	clock crawler.Clock
}

// WithStore replaces the configured blob store.
func WithStore(store crawler.BlobStore) Option {
	return func(o *options) { o.store = store }
}

// WithClock replaces the system clock.
func WithClock(clock crawler.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New builds every service from cfg and fails fast if any cannot start.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}

	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	// 1. Blob store.
	store := o.store
	if store == nil {
		var err error
		store, err = a.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	a.store = store

	// 2. Fetch stack: one collector shared by the archive lookup and the crawl.
	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.HTTP.Timeout,
		Delay:        cfg.HTTP.Delay,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	resolver, err := archive.New(archive.Config{
		Endpoint:    cfg.Archive.Endpoint,
		MaxAttempts: cfg.Archive.MaxAttempts,
		RetryDelay:  cfg.Archive.RetryDelay,
	}, fetcher, o.clock, logger.Named("archive"))
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("init archive resolver: %w", err)
	}
	retrying := crawler.NewRetryingFetcher(
		fetcher,
		crawler.NewFixedRetryPolicy(cfg.HTTP.MaxAttempts, cfg.HTTP.RetryDelay),
		o.clock,
		cfg.HTTP.StoreErrorResponses,
		logger.Named("fetch"),
	)

	// 3. Progress: log lines plus Prometheus collectors.
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	// 4. Engine.
	a.engine, err = crawler.NewEngine(
		crawler.Config{
			CrossOriginAssets: cfg.Mirror.CrossOriginAssets,
			MaxItems:          cfg.Mirror.MaxItems,
			MaxDepth:          cfg.Mirror.MaxDepth,
			ManifestPath:      cfg.Mirror.Manifest,
		},
		resolver,
		retrying,
		a.store,
		sha256.New(),
		o.clock,
		uuid.New(),
		a.hub,
		logger.Named("crawler"),
	)
	if err != nil {
		_ = a.hub.Close(ctx)
		a.closeStore()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case config.ProviderGCS:
		a.logger.Info("Using GCS blob store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.ProviderMemory:
		a.logger.Info("Using in-memory blob store. Mirrored files will be discarded.")
		return memory.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Mirror.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.logger.Info("Using local blob store", zap.String("dir", store.BaseDir()))
		return store, nil
	}
}

func (a *App) closeStore() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("Error closing blob store", zap.Error(err))
		}
	}
	a.closers = nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the configured blob store.
func (a *App) Store() crawler.BlobStore {
	return a.store
}

// Registry exposes the Prometheus registry the progress sink reports into.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Run mirrors targetURL at the configured timestamp.
func (a *App) Run(ctx context.Context, targetURL string) (crawler.Report, error) {
	report, err := a.engine.Run(ctx, targetURL, a.cfg.Mirror.Timestamp)
	if err != nil {
		return report, fmt.Errorf("run mirror: %w", err)
	}
	return report, nil
}

// WriteMetrics writes the registry in the Prometheus text format to path.
func (a *App) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Close drains pending progress events, writes the metrics textfile when
// configured and releases the store. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.WriteMetrics(path); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeStore()
	return errors.Join(errs...)
}
