// Package app_test exercises the crawl, build, persist and notify pipeline end to end.
package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/app"
	"github.com/JakeFAU/site-search/internal/config"
	"github.com/JakeFAU/site-search/internal/crawler"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/metrics"
	memorypublisher "github.com/JakeFAU/site-search/internal/publisher/memory"
	"github.com/JakeFAU/site-search/internal/storage"
	memorystorage "github.com/JakeFAU/site-search/internal/storage/memory"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		"/": `<html><head><title>Home</title></head><body>
			<p>Welcome to the zoo.</p>
			<a href="/lions">Lions</a> <a href="/tigers">Tigers</a>
			<a href="https://elsewhere.example/">Away</a></body></html>`,
		"/lions": `<html><head><title>Lions</title></head><body>
			<p>Lions roar.</p> lion lion lion <a href="/">home</a></body></html>`,
		"/tigers": `<html><head><title>Tigers</title></head><body>
			<p>Tigers stripe.</p> tiger lion <a href="/lions">lions</a></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func baseConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Crawler: config.CrawlerConfig{Concurrency: 2, UserAgent: "test", RequestTimeoutSeconds: 5},
		Index:   config.IndexConfig{Name: "zoo", Backend: config.BackendMemory},
		Storage: config.StorageConfig{Backend: config.StorageMemory, Prefix: "indexes"},
		PubSub:  config.PubSubConfig{ProjectID: "p", TopicName: "index-built"},
	}
}

func TestCrawlBuildsPersistsAndNotifies(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	blobs := memorystorage.NewBlobStore()
	pub := memorypublisher.New()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := app.NewWithDeps(baseConfig(), app.Deps{
		Logger:    zap.NewNop(),
		BlobStore: blobs,
		Publisher: pub,
		Clock:     fixedClock{now: now},
	})
	t.Cleanup(a.Close)

	res, err := a.Crawl(context.Background(), srv.URL+"/", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Indexed)
	assert.Equal(t, 1, res.Stats.OutOfScope)
	assert.Equal(t, "memory://indexes/zoo.json", res.Snapshot.URI)
	assert.Equal(t, []string{"indexes/zoo.json"}, blobs.Keys())

	results, err := res.Index.Search(context.Background(), "lion")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, srv.URL+"/lions", results[0].URL)
	assert.Equal(t, "Lions", results[0].Title)
	assert.Equal(t, "Lions roar.", results[0].Preview)

	require.Len(t, pub.Messages(), 1)
	var event crawler.IndexBuilt
	require.NoError(t, pub.Decode(0, &event))
	assert.Equal(t, "index-built", pub.Messages()[0].Topic)
	assert.Equal(t, res.Stats.RunID, event.RunID)
	assert.Equal(t, 3, event.Documents)
	assert.Equal(t, res.Snapshot.Hash, event.SnapshotHash)
	assert.Equal(t, now, event.BuiltAt)

	loaded, err := a.LoadIndex(context.Background())
	require.NoError(t, err)
	again, err := loaded.Search(context.Background(), "lion")
	require.NoError(t, err)
	assert.Equal(t, results, again)
}

// documentsObserved reads index_documents_total from the default registry.
func documentsObserved(t *testing.T) float64 {
	t.Helper()
	metrics.Init()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "index_documents_total" && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatal("index_documents_total not registered")
	return 0
}

// Not parallel: the document counter is process-wide.
func TestCrawlCountsEachDocumentOnce(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			srv := newSite(t)
			cfg := baseConfig()
			cfg.Index.Backend = backend
			cfg.Index.SQLitePath = filepath.Join(t.TempDir(), "zoo.db")
			cfg.PubSub = config.PubSubConfig{}
			a := app.NewWithDeps(cfg, app.Deps{})
			t.Cleanup(a.Close)

			before := documentsObserved(t)
			res, err := a.Crawl(context.Background(), srv.URL, 2)
			require.NoError(t, err)
			t.Cleanup(func() { _ = res.Index.Close() })

			assert.Equal(t, 3, res.Stats.Indexed)
			assert.Equal(t, 3, res.Stats.Dispatched)
			assert.Equal(t, float64(res.Stats.Indexed), documentsObserved(t)-before)
		})
	}
}

func TestCrawlWithSQLiteBackend(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	cfg := baseConfig()
	cfg.Index.Backend = config.BackendSQLite
	cfg.Index.SQLitePath = filepath.Join(t.TempDir(), "zoo.db")
	cfg.PubSub = config.PubSubConfig{}
	a := app.NewWithDeps(cfg, app.Deps{})
	t.Cleanup(a.Close)

	res, err := a.Crawl(context.Background(), srv.URL+"/", 3)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://"+cfg.Index.SQLitePath, res.Snapshot.URI)

	results, err := res.Index.Search(context.Background(), "tiger")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, srv.URL+"/tigers", results[0].URL)
	require.NoError(t, res.Index.Close())

	loaded, err := a.LoadIndex(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })
	results, err = loaded.Search(context.Background(), "lion")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLoadIndexWithoutSnapshot(t *testing.T) {
	t.Parallel()

	a := app.NewWithDeps(baseConfig(), app.Deps{})
	t.Cleanup(a.Close)
	_, err := a.LoadIndex(context.Background())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCrawlRejectsBadSeed(t *testing.T) {
	t.Parallel()

	a := app.NewWithDeps(baseConfig(), app.Deps{})
	t.Cleanup(a.Close)
	_, err := a.Crawl(context.Background(), "ftp://example.test/", 2)
	require.ErrorIs(t, err, crawler.ErrInvalidSeed)
}

func TestNewIndexHonorsBackend(t *testing.T) {
	t.Parallel()

	a := app.NewWithDeps(baseConfig(), app.Deps{})
	t.Cleanup(a.Close)
	idx, err := a.NewIndex()
	require.NoError(t, err)
	_, ok := idx.(*index.Inverted)
	assert.True(t, ok)
}
