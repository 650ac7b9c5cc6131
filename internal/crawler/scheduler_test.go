package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// siteFetcher serves a fixed in-memory site and records every fetch.
type siteFetcher struct {
	pages map[string]FetchResult
	errs  map[string]error
	delay time.Duration

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

func newSiteFetcher() *siteFetcher {
	return &siteFetcher{
		pages: make(map[string]FetchResult),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *siteFetcher) html(url, body string) {
	f.pages[url] = FetchResult{URL: url, StatusCode: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: []byte(body)}
}

func (f *siteFetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	f.mu.Lock()
	f.calls[url]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return FetchResult{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.errs[url]; ok {
		return FetchResult{}, err
	}
	page, ok := f.pages[url]
	if !ok {
		return FetchResult{URL: url, StatusCode: http.StatusNotFound, ContentType: "text/html"}, nil
	}
	return page, nil
}

func (f *siteFetcher) fetched() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		out[k] = v
	}
	return out
}

// recordingSink collects documents.
type recordingSink struct {
	mu   sync.Mutex
	docs []Document
	fail map[string]bool
}

func (s *recordingSink) AddDocument(_ context.Context, doc Document) error {
	if s.fail[doc.URL] {
		return errors.New("sink rejected document")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *recordingSink) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.URL)
	}
	sort.Strings(out)
	return out
}

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

func page(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><p>%s body</p>", title, title)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestSchedulerCrawlsSameOriginSite(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.html("http://example.test/", page("Home", "/a", "/b", "https://other.test/x", "/image.png", "/missing", "/down"))
	site.html("http://example.test/a", page("A", "/", "b#frag", "mailto:me@example.test"))
	site.html("http://example.test/b", page("B", "http://example.test:80/a"))
	site.pages["http://example.test/image.png"] = FetchResult{StatusCode: http.StatusOK, ContentType: "image/png", Body: []byte{0x89}}
	site.errs["http://example.test/down"] = errors.New("connection refused")

	sink := &recordingSink{}
	s := NewScheduler(site, sink, fixedID("run-1"), zap.NewNop())

	stats, err := s.Crawl(context.Background(), "http://Example.test/", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://example.test/", "http://example.test/a", "http://example.test/b"}, sink.urls())
	assert.Equal(t, "run-1", stats.RunID)
	assert.Equal(t, "http://example.test/", stats.Seed)
	assert.Equal(t, 6, stats.Dispatched)
	assert.Equal(t, 3, stats.Indexed)
	assert.Equal(t, 2, stats.Skipped, "non-html and 404")
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.OutOfScope)

	for url := range site.fetched() {
		assert.True(t, strings.HasPrefix(url, "http://example.test/"), "out of scope fetch %s", url)
	}
}

func TestSchedulerNeverFetchesTwiceUnderConcurrency(t *testing.T) {
	t.Parallel()

	const pages = 40
	site := newSiteFetcher()
	site.delay = 2 * time.Millisecond
	all := make([]string, 0, pages*2)
	for i := 0; i < pages; i++ {
		all = append(all, fmt.Sprintf("/p%d", i), fmt.Sprintf("/p%d#again", i))
	}
	for i := 0; i < pages; i++ {
		site.html(fmt.Sprintf("http://example.test/p%d", i), page(fmt.Sprintf("P%d", i), all...))
	}

	sink := &recordingSink{}
	s := NewScheduler(site, sink, nil, nil)

	const concurrency = 8
	stats, err := s.Crawl(context.Background(), "http://example.test/p0", concurrency)
	require.NoError(t, err)

	fetched := site.fetched()
	require.Len(t, fetched, pages)
	for url, n := range fetched {
		assert.Equal(t, 1, n, "url %s fetched %d times", url, n)
	}
	assert.Len(t, sink.urls(), pages, "each page indexed exactly once")
	assert.Equal(t, pages, stats.Dispatched)
	assert.LessOrEqual(t, site.maxInFlight, concurrency)
}

func TestSchedulerSeedWithoutTrailingSlash(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.html("http://example.test/", page("Home", "/", "/about", "http://example.test"))
	site.html("http://example.test/about", page("About", "/"))

	sink := &recordingSink{}
	stats, err := NewScheduler(site, sink, nil, nil).Crawl(context.Background(), "http://example.test", 2)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"http://example.test/": 1, "http://example.test/about": 1}, site.fetched())
	assert.Equal(t, []string{"http://example.test/", "http://example.test/about"}, sink.urls())
	assert.Equal(t, "http://example.test/", stats.Seed)
	assert.Equal(t, 2, stats.Dispatched)
}

func TestSchedulerSkipsOnlyTheOutOfScopeLink(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.html("http://example.test/", page("Home", "https://external.test/first", "/after-external"))
	site.html("http://example.test/after-external", page("After"))

	sink := &recordingSink{}
	_, err := NewScheduler(site, sink, nil, nil).Crawl(context.Background(), "http://example.test/", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://example.test/", "http://example.test/after-external"}, sink.urls())
}

func TestSchedulerContinuesWhenSinkFails(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.html("http://example.test/", page("Home", "/next"))
	site.html("http://example.test/next", page("Next"))

	sink := &recordingSink{fail: map[string]bool{"http://example.test/": true}}
	stats, err := NewScheduler(site, sink, nil, nil).Crawl(context.Background(), "http://example.test/", 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://example.test/next"}, sink.urls())
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Indexed)
}

func TestSchedulerRejectsBadArguments(t *testing.T) {
	t.Parallel()

	s := NewScheduler(newSiteFetcher(), &recordingSink{}, nil, nil)

	_, err := s.Crawl(context.Background(), "http://example.test/", 0)
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	_, err = s.Crawl(context.Background(), "not a url", 1)
	assert.ErrorIs(t, err, ErrInvalidSeed)

	_, err = NewScheduler(nil, nil, nil, nil).Crawl(context.Background(), "http://example.test/", 1)
	assert.Error(t, err)
}

func TestSchedulerStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.html("http://example.test/", page("Home"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewScheduler(site, &recordingSink{}, nil, nil).Crawl(ctx, "http://example.test/", 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Dispatched)
	assert.Empty(t, site.fetched())
}

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(FetchResult), args.Error(1)
}

func TestSchedulerSingleAttemptPerURL(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "http://example.test/").
		Return(FetchResult{StatusCode: http.StatusServiceUnavailable, ContentType: "text/html"}, nil).
		Once()

	stats, err := NewScheduler(fetcher, &recordingSink{}, nil, nil).Crawl(context.Background(), "http://example.test/", 4)
	require.NoError(t, err)

	fetcher.AssertExpectations(t)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	assert.Equal(t, 1, stats.Skipped)
}
