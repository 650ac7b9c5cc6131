// Package sqlite implements index.Index on SQLite FTS5.
//
// Scores are summed term frequencies read from an fts5vocab instance table,
// so results rank exactly as they do in the in-memory index.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/crawler"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/metrics"
)

const (
	backendName = "sqlite"
	builtAtKey  = "built_at"
)

// Option customizes an Index.
type Option func(*Index)

// WithTokenizer shares the tokenizer used for documents and queries.
func WithTokenizer(t *index.Tokenizer) Option {
	return func(i *Index) {
		if t != nil {
			i.tokenizer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

type row struct {
	url     string
	title   string
	preview string
	terms   string
}

// Index stores documents in an FTS5 table once Build runs.
type Index struct {
	db        *sql.DB
	tokenizer *index.Tokenizer
	logger    *zap.Logger

	mu      sync.Mutex
	pending []row
	sealed  bool
	built   bool
}

var _ index.Index = (*Index)(nil)

// New creates a fresh index at path, dropping any previous contents.
func New(path string, opts ...Option) (*Index, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return newIndex(db, opts), nil
}

// Open opens an index previously built at path. The result only answers queries.
func Open(ctx context.Context, path string, opts ...Option) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	var builtAt string
	err = db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = ?`, builtAtKey).Scan(&builtAt)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("open index %s: %w", path, index.ErrNotBuilt)
		}
		return nil, fmt.Errorf("read index metadata: %w", err)
	}

	idx := newIndex(db, opts)
	idx.sealed = true
	idx.built = true
	idx.logger.Info("sqlite index opened", zap.String("path", path), zap.String("built_at", builtAt))
	return idx, nil
}

func newIndex(db *sql.DB, opts []Option) *Index {
	idx := &Index{
		db:        db,
		tokenizer: index.NewTokenizer(nil),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(idx)
		}
	}
	return idx
}

// AddDocument tokenizes the document and buffers it until Build.
func (i *Index) AddDocument(_ context.Context, doc crawler.Document) error {
	terms := strings.Join(i.tokenizer.Tokens(doc.FullText), " ")

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sealed {
		return index.ErrAlreadyBuilt
	}
	i.pending = append(i.pending, row{
		url:     doc.URL,
		title:   doc.Title,
		preview: doc.Preview,
		terms:   terms,
	})
	metrics.ObserveDocument()
	return nil
}

// Build writes every buffered document in a single transaction.
func (i *Index) Build(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sealed {
		return index.ErrAlreadyBuilt
	}

	if err := i.insert(ctx, i.pending); err != nil {
		return err
	}
	i.logger.Info("sqlite index built", zap.Int("documents", len(i.pending)))
	i.pending = nil
	i.sealed = true
	i.built = true
	return nil
}

func (i *Index) insert(ctx context.Context, rows []row) (err error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO documents (url, title, preview, terms) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, r.url, r.title, r.preview, r.terms); err != nil {
			return fmt.Errorf("index document %s: %w", r.url, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)`,
		builtAtKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record build time: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit build: %w", err)
	}
	return nil
}

// Search returns documents containing any query term, ordered by the summed
// frequency of the matched terms and then by URL.
func (i *Index) Search(ctx context.Context, query string) ([]index.Result, error) {
	i.mu.Lock()
	built := i.built
	i.mu.Unlock()
	if !built {
		return nil, index.ErrNotBuilt
	}
	start := time.Now()

	terms := i.tokenizer.QueryTerms(query)
	if len(terms) == 0 {
		return []index.Result{}, nil
	}

	args := make([]any, len(terms))
	for n, t := range terms {
		args[n] = t
	}
	rows, err := i.db.QueryContext(ctx, `SELECT d.url, d.title, d.preview, COUNT(*) AS score
		 FROM documents_instances v
		 JOIN documents d ON d.rowid = v.doc
		 WHERE v.term IN (`+placeholders(len(terms))+`)
		 GROUP BY d.rowid
		 ORDER BY score DESC, d.url ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]index.Result, 0)
	for rows.Next() {
		var r index.Result
		if err := rows.Scan(&r.URL, &r.Title, &r.Preview, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Preview == "" {
			r.Preview = index.PreviewUnavailable
		}
		if r.Title == "" {
			r.Title = index.Untitled
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	metrics.ObserveSearch(backendName, len(results), time.Since(start))
	return results, nil
}

// placeholders returns n comma-separated bind parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// Stats reports document, term and posting counts.
func (i *Index) Stats() index.IndexStats {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.built {
		return index.IndexStats{Documents: len(i.pending)}
	}

	stats := index.IndexStats{Built: true}
	ctx := context.Background()
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.Documents); err != nil {
		i.logger.Warn("count documents failed", zap.Error(err))
	}
	if err := i.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(doc), 0) FROM documents_vocab`).Scan(&stats.Terms, &stats.Postings); err != nil {
		i.logger.Warn("count terms failed", zap.Error(err))
	}
	return stats
}

// Close releases the database handle.
func (i *Index) Close() error {
	if err := i.db.Close(); err != nil {
		return fmt.Errorf("close index db: %w", err)
	}
	return nil
}
