// Package app builds the long-lived services of site-search from configuration
// and runs the crawl, build, persist and notify pipeline on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/clock/system"
	"github.com/JakeFAU/site-search/internal/config"
	"github.com/JakeFAU/site-search/internal/crawler"
	collyfetcher "github.com/JakeFAU/site-search/internal/fetcher/colly"
	"github.com/JakeFAU/site-search/internal/id/uuid"
	"github.com/JakeFAU/site-search/internal/index"
	sqliteindex "github.com/JakeFAU/site-search/internal/index/sqlite"
	"github.com/JakeFAU/site-search/internal/logging"
	pubsubpublisher "github.com/JakeFAU/site-search/internal/publisher/pubsub"
	"github.com/JakeFAU/site-search/internal/storage/gcs"
	"github.com/JakeFAU/site-search/internal/storage/local"
	memorystorage "github.com/JakeFAU/site-search/internal/storage/memory"
	"github.com/JakeFAU/site-search/internal/storage/postgres"
)

// App holds the shared services commands need.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	blobs     crawler.BlobStore
	publisher crawler.Publisher
	fetcher   crawler.Fetcher
	ids       *uuid.Generator
	clock     crawler.Clock

	closers []func() error
}

// Deps overrides services New would otherwise build from configuration.
type Deps struct {
	Logger    *zap.Logger
	BlobStore crawler.BlobStore
	Publisher crawler.Publisher
	Fetcher   crawler.Fetcher
	Clock     crawler.Clock
}

// New builds an App from configuration, failing fast if any backend cannot
// be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a := newApp(cfg, Deps{Logger: logger})

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.blobs = blobs

	pub, err := a.openPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = pub

	a.logger.Info("application services initialized",
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("notifications", cfg.PubSub.TopicName != ""),
	)
	return a, nil
}

// NewWithDeps builds an App around caller-supplied services. Missing services
// fall back to in-process implementations.
func NewWithDeps(cfg config.Config, deps Deps) *App {
	a := newApp(cfg, deps)
	if a.blobs == nil {
		a.blobs = memorystorage.NewBlobStore()
	}
	if a.publisher == nil {
		a.publisher = pubsubpublisher.Noop{}
	}
	return a
}

func newApp(cfg config.Config, deps Deps) *App {
	a := &App{
		cfg:       cfg,
		logger:    deps.Logger,
		blobs:     deps.BlobStore,
		publisher: deps.Publisher,
		fetcher:   deps.Fetcher,
		ids:       uuid.New(),
		clock:     deps.Clock,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.clock == nil {
		a.clock = system.New()
	}
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.Crawler.UserAgent,
			Timeout:     cfg.FetchTimeout(),
			MaxBodySize: cfg.Crawler.MaxBodyBytes,
		})
	}
	return a
}

func (a *App) openBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageMemory:
		a.logger.Warn("using in-memory storage; snapshots are lost on exit")
		return memorystorage.NewBlobStore(), nil
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case config.StorageGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:   a.cfg.Storage.PostgresDSN,
			Table: a.cfg.Storage.PostgresTable,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func (a *App) openPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		return pubsubpublisher.Noop{}, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client, map[string]string{"event_type": "index_built"})
	a.closers = append(a.closers, func() error {
		pub.Close()
		return client.Close()
	})
	return pub, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// BlobStore returns the snapshot store.
func (a *App) BlobStore() crawler.BlobStore { return a.blobs }

// RequestIDs returns the generator used for HTTP request IDs.
func (a *App) RequestIDs() *uuid.Generator { return a.ids }

// NewIndex returns an empty index of the configured backend.
func (a *App) NewIndex() (index.Index, error) {
	switch a.cfg.Index.Backend {
	case config.BackendSQLite:
		idx, err := sqliteindex.New(a.cfg.Index.SQLitePath, sqliteindex.WithLogger(a.logger.Named("index")))
		if err != nil {
			return nil, fmt.Errorf("create sqlite index: %w", err)
		}
		return idx, nil
	default:
		return index.NewInverted(
			index.WithLogger(a.logger.Named("index")),
			index.WithClock(a.clock),
			index.WithSnapshotPrefix(a.cfg.Storage.Prefix),
		), nil
	}
}

// LoadIndex opens the most recently persisted index of the configured backend.
func (a *App) LoadIndex(ctx context.Context) (index.Index, error) {
	switch a.cfg.Index.Backend {
	case config.BackendSQLite:
		idx, err := sqliteindex.Open(ctx, a.cfg.Index.SQLitePath, sqliteindex.WithLogger(a.logger.Named("index")))
		if err != nil {
			return nil, fmt.Errorf("open sqlite index: %w", err)
		}
		return idx, nil
	default:
		idx, err := index.Load(ctx, a.blobs, a.cfg.Index.Name,
			index.WithLogger(a.logger.Named("index")),
			index.WithSnapshotPrefix(a.cfg.Storage.Prefix),
		)
		if err != nil {
			return nil, fmt.Errorf("load index %q: %w", a.cfg.Index.Name, err)
		}
		return idx, nil
	}
}

// CrawlResult reports one completed pipeline run.
type CrawlResult struct {
	Stats    crawler.Stats
	Index    index.Index
	Snapshot index.SnapshotInfo
	Event    crawler.IndexBuilt
}

// Crawl crawls seed, builds a fresh index from it, persists the index and
// publishes an IndexBuilt event. The returned index is ready for queries.
func (a *App) Crawl(ctx context.Context, seed string, concurrency int) (CrawlResult, error) {
	idx, err := a.NewIndex()
	if err != nil {
		return CrawlResult{}, err
	}
	fail := func(err error) (CrawlResult, error) {
		if cerr := idx.Close(); cerr != nil {
			a.logger.Warn("close index failed", zap.Error(cerr))
		}
		return CrawlResult{}, err
	}

	scheduler := crawler.NewScheduler(a.fetcher, idx, a.ids, a.logger.Named("crawler"))
	stats, err := scheduler.Crawl(ctx, seed, concurrency)
	if err != nil {
		return fail(fmt.Errorf("crawl %s: %w", seed, err))
	}
	if err := idx.Build(ctx); err != nil {
		return fail(fmt.Errorf("build index: %w", err))
	}

	snap, err := a.persist(ctx, idx)
	if err != nil {
		return fail(err)
	}

	istats := idx.Stats()
	event := crawler.IndexBuilt{
		RunID:        stats.RunID,
		Seed:         stats.Seed,
		IndexName:    a.cfg.Index.Name,
		Documents:    istats.Documents,
		Terms:        istats.Terms,
		SnapshotURI:  snap.URI,
		SnapshotHash: snap.Hash,
		BuiltAt:      a.clock.Now(),
	}
	if err := a.notify(ctx, event); err != nil {
		// The index is already persisted; a lost notification is not fatal.
		a.logger.Warn("publish index built event failed", zap.Error(err))
	}

	return CrawlResult{Stats: stats, Index: idx, Snapshot: snap, Event: event}, nil
}

func (a *App) persist(ctx context.Context, idx index.Index) (index.SnapshotInfo, error) {
	switch v := idx.(type) {
	case *index.Inverted:
		info, err := v.Save(ctx, a.blobs, a.cfg.Index.Name)
		if err != nil {
			return index.SnapshotInfo{}, fmt.Errorf("save snapshot: %w", err)
		}
		return info, nil
	default:
		// The sqlite backend persists as it builds.
		return index.SnapshotInfo{URI: "sqlite://" + a.cfg.Index.SQLitePath}, nil
	}
}

func (a *App) notify(ctx context.Context, event crawler.IndexBuilt) error {
	if a.cfg.PubSub.TopicName == "" {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := a.publisher.Publish(pubCtx, a.cfg.PubSub.TopicName, event)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", a.cfg.PubSub.TopicName, err)
	}
	a.logger.Info("index built event published", zap.String("message_id", id), zap.String("run_id", event.RunID))
	return nil
}

// Close releases backends in reverse order of creation and flushes the logger.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
	// Sync fails on stderr/stdout on some platforms; nothing useful to do about it.
	_ = a.logger.Sync()
}
