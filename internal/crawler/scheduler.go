package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-search/internal/metrics"
)

// ErrInvalidConcurrency is returned when Crawl is asked for fewer than one worker.
var ErrInvalidConcurrency = errors.New("concurrency must be >= 1")

const htmlContentType = "text/html"

// Scheduler explores the link graph reachable from a seed URL, restricted to the
// seed's authority, fetching each distinct URL at most once.
//
// Workers run in bounded batches: at most `concurrency` fetches are in flight,
// and a new batch starts only after the previous one has fully joined.
type Scheduler struct {
	fetcher Fetcher
	sink    DocumentSink
	idGen   IDGenerator
	logger  *zap.Logger
}

// NewScheduler constructs a Scheduler. idGen and logger may be nil.
func NewScheduler(fetcher Fetcher, sink DocumentSink, idGen IDGenerator, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher: fetcher,
		sink:    sink,
		idGen:   idGen,
		logger:  logger,
	}
}

// run holds the state of a single Crawl call.
type run struct {
	authority string
	visited   *VisitedSet
	frontier  *Frontier
	logger    *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// Crawl fetches every in-scope page reachable from seedURL and hands each
// accepted page to the sink. It returns once the frontier is empty and all
// workers have returned, or when ctx is canceled.
func (s *Scheduler) Crawl(ctx context.Context, seedURL string, concurrency int) (Stats, error) {
	if concurrency < 1 {
		return Stats{}, ErrInvalidConcurrency
	}
	if s.fetcher == nil || s.sink == nil {
		return Stats{}, errors.New("scheduler requires a fetcher and a document sink")
	}
	seed, err := parseSeed(seedURL)
	if err != nil {
		return Stats{}, err
	}

	r := &run{
		authority: seed.Scheme + "://" + seed.Host,
		visited:   NewVisitedSet(),
		frontier:  NewFrontier(seed.String()),
		stats:     Stats{RunID: s.newRunID(), Seed: seed.String()},
	}
	r.logger = s.logger.With(zap.String("run_id", r.stats.RunID), zap.String("seed", r.stats.Seed))
	r.logger.Info("crawl started", zap.Int("concurrency", concurrency))

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			stats := r.finish(start)
			metrics.ObserveCrawl("canceled")
			r.logger.Warn("crawl canceled", zap.Int("dispatched", stats.Dispatched), zap.Error(err))
			return stats, fmt.Errorf("crawl canceled: %w", err)
		}
		batch := r.nextBatch(concurrency)
		if len(batch) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(concurrency)
		for _, target := range batch {
			g.Go(func() error {
				s.visit(ctx, r, target)
				return nil
			})
		}
		// visit never returns an error; failures are recorded in stats.
		_ = g.Wait()
	}

	stats := r.finish(start)
	metrics.ObserveCrawl("succeeded")
	r.logger.Info("crawl finished",
		zap.Int("dispatched", stats.Dispatched),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("out_of_scope", stats.OutOfScope),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (s *Scheduler) newRunID() string {
	if s.idGen == nil {
		return ""
	}
	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Warn("generate run id failed", zap.Error(err))
		return ""
	}
	return id
}

// visit dispatches a single target. Every failure is recorded and swallowed so
// that one bad URL never aborts the crawl.
func (s *Scheduler) visit(ctx context.Context, r *run, target string) {
	if !r.visited.MarkIfNotVisited(target) {
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	res, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		r.logger.Warn("fetch failed", zap.String("url", target), zap.Error(err))
		r.update(func(st *Stats) { st.Failed++ })
		metrics.ObserveFetch(target, metrics.OutcomeFailed, 0)
		return
	}
	if !accepted(res) {
		r.logger.Debug("page skipped",
			zap.String("url", target),
			zap.Int("status_code", res.StatusCode),
			zap.String("content_type", res.ContentType),
		)
		r.update(func(st *Stats) { st.Skipped++ })
		metrics.ObserveFetch(target, metrics.OutcomeSkipped, len(res.Body))
		return
	}

	doc, links, err := Extract(target, res.Body)
	if err != nil {
		r.logger.Warn("extract failed", zap.String("url", target), zap.Error(err))
		r.update(func(st *Stats) { st.Failed++ })
		metrics.ObserveFetch(target, metrics.OutcomeFailed, len(res.Body))
		return
	}

	if err := s.sink.AddDocument(ctx, doc); err != nil {
		r.logger.Warn("add document failed", zap.String("url", target), zap.Error(err))
		r.update(func(st *Stats) { st.Failed++ })
		metrics.ObserveFetch(target, metrics.OutcomeFailed, len(res.Body))
	} else {
		r.update(func(st *Stats) { st.Indexed++ })
		metrics.ObserveFetch(target, metrics.OutcomeIndexed, len(res.Body))
	}

	r.enqueue(links)
}

func accepted(res FetchResult) bool {
	return res.StatusCode == http.StatusOK &&
		strings.Contains(strings.ToLower(res.ContentType), htmlContentType)
}

// enqueue pushes in-scope links that have not been dispatched yet. Links
// outside the seed authority are dropped one by one; the rest of the page's
// links are still considered.
func (r *run) enqueue(links []string) {
	var (
		next       []string
		outOfScope int
	)
	for _, link := range links {
		authority, err := Authority(link)
		if err != nil || authority != r.authority {
			outOfScope++
			continue
		}
		if r.visited.Contains(link) {
			continue
		}
		next = append(next, link)
	}
	r.frontier.Push(next...)
	if outOfScope > 0 {
		r.update(func(st *Stats) { st.OutOfScope += outOfScope })
		metrics.ObserveOutOfScope(r.authority, outOfScope)
	}
}

// nextBatch pops up to n targets that have not been dispatched yet.
func (r *run) nextBatch(n int) []string {
	var out []string
	for len(out) < n {
		items := r.frontier.PopN(n - len(out))
		if len(items) == 0 {
			break
		}
		for _, u := range items {
			if !r.visited.Contains(u) {
				out = append(out, u)
			}
		}
	}
	return out
}

func (r *run) update(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

func (r *run) finish(start time.Time) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Dispatched = r.visited.Len()
	r.stats.Duration = time.Since(start)
	return r.stats
}
