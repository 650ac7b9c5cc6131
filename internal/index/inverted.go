package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/crawler"
	"github.com/JakeFAU/site-search/internal/metrics"
)

const backendMemory = "memory"

type pendingDoc struct {
	counts  map[string]int
	url     string
	preview string
	title   string
}

// built is the read-only state published by Build or Load.
type built struct {
	postings  map[string][]Posting
	documents int
	builtAt   time.Time
}

// Inverted is a term to postings map built once from cached documents.
type Inverted struct {
	opts options

	mu      sync.Mutex
	pending []pendingDoc
	sealed  bool

	state atomic.Pointer[built]
}

var _ Index = (*Inverted)(nil)

// NewInverted returns an empty, unbuilt index.
func NewInverted(opts ...Option) *Inverted {
	return &Inverted{opts: applyOptions(opts)}
}

// AddDocument tokenizes the document text and caches its term counts.
// The index itself is not touched until Build.
func (i *Inverted) AddDocument(_ context.Context, doc crawler.Document) error {
	counts := i.opts.tokenizer.Counts(doc.FullText)

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sealed {
		return ErrAlreadyBuilt
	}
	i.pending = append(i.pending, pendingDoc{
		counts:  counts,
		url:     doc.URL,
		preview: doc.Preview,
		title:   doc.Title,
	})
	metrics.ObserveDocument()
	return nil
}

// Build turns the cached documents into postings. It may run only once.
func (i *Inverted) Build(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	i.mu.Lock()
	if i.sealed {
		i.mu.Unlock()
		return ErrAlreadyBuilt
	}
	i.sealed = true
	docs := i.pending
	i.pending = nil
	i.mu.Unlock()

	postings := make(map[string][]Posting)
	for _, doc := range docs {
		// Sorted terms keep posting order stable across runs.
		terms := make([]string, 0, len(doc.counts))
		for term := range doc.counts {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			postings[term] = append(postings[term], Posting{
				URL:       doc.url,
				Frequency: doc.counts[term],
				Preview:   doc.preview,
				Title:     doc.title,
			})
		}
	}

	b := &built{postings: postings, documents: len(docs), builtAt: i.opts.clock.Now()}
	i.state.Store(b)

	i.opts.logger.Info("index built",
		zap.Int("documents", b.documents),
		zap.Int("terms", len(postings)),
	)
	return nil
}

// Search ranks documents by the summed frequency of the query terms they contain.
func (i *Inverted) Search(_ context.Context, query string) ([]Result, error) {
	b := i.state.Load()
	if b == nil {
		return nil, ErrNotBuilt
	}
	start := time.Now()

	grouped := make(map[string]*Result)
	for _, term := range i.opts.tokenizer.QueryTerms(query) {
		for _, p := range b.postings[term] {
			r, ok := grouped[p.URL]
			if !ok {
				r = &Result{URL: p.URL}
				grouped[p.URL] = r
			}
			r.Score += p.Frequency
			if r.Preview == "" {
				r.Preview = p.Preview
			}
			if r.Title == "" {
				r.Title = p.Title
			}
		}
	}

	results := make([]Result, 0, len(grouped))
	for _, r := range grouped {
		results = append(results, withPlaceholders(*r))
	}
	sortResults(results)

	metrics.ObserveSearch(backendMemory, len(results), time.Since(start))
	return results, nil
}

// Stats reports the size of the index. Before Build only Documents is set.
func (i *Inverted) Stats() IndexStats {
	if b := i.state.Load(); b != nil {
		stats := IndexStats{Documents: b.documents, Terms: len(b.postings), Built: true}
		for _, list := range b.postings {
			stats.Postings += len(list)
		}
		return stats
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return IndexStats{Documents: len(i.pending)}
}

// BuiltAt returns when the index was built, or the zero time.
func (i *Inverted) BuiltAt() time.Time {
	if b := i.state.Load(); b != nil {
		return b.builtAt
	}
	return time.Time{}
}

// Close is a no-op; the index holds no external resources.
func (i *Inverted) Close() error { return nil }

func sortResults(results []Result) {
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].URL < results[b].URL
	})
}
