package index

import (
	"context"
	"errors"

	"github.com/JakeFAU/site-search/internal/crawler"
)

// Placeholders substituted for empty document metadata in search results.
const (
	PreviewUnavailable = "Preview unavailable"
	Untitled           = "Untitled"
)

var (
	// ErrAlreadyBuilt is returned by Build on a second call and by AddDocument after Build.
	ErrAlreadyBuilt = errors.New("index already built")
	// ErrNotBuilt is returned by Search and Save before Build or Load.
	ErrNotBuilt = errors.New("index not built")
)

// Index accumulates documents, builds once, and answers ranked queries.
type Index interface {
	crawler.DocumentSink
	Build(ctx context.Context) error
	Search(ctx context.Context, query string) ([]Result, error)
	Stats() IndexStats
	Close() error
}

// Posting records one document's frequency for one term.
type Posting struct {
	URL       string `json:"url"`
	Frequency int    `json:"tf"`
	Preview   string `json:"preview"`
	Title     string `json:"title"`
}

// Result is one ranked search hit.
type Result struct {
	URL     string `json:"url"`
	Score   int    `json:"score"`
	Preview string `json:"preview"`
	Title   string `json:"title"`
}

// IndexStats describes the size of an index.
type IndexStats struct {
	Documents int  `json:"documents"`
	Terms     int  `json:"terms"`
	Postings  int  `json:"postings"`
	Built     bool `json:"built"`
}

func withPlaceholders(r Result) Result {
	if r.Preview == "" {
		r.Preview = PreviewUnavailable
	}
	if r.Title == "" {
		r.Title = Untitled
	}
	return r
}
