package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// schema drops and recreates all tables. An index is built once from a crawl,
// so there is nothing to migrate.
//
// The FTS table holds the terms produced by index.Tokenizer, joined by spaces,
// so FTS5's own tokenizer only ever splits on those spaces and query terms
// match exactly what the in-memory index would produce. documents_instances
// has one row per term occurrence, which is what Search sums.
const schema = `
DROP TRIGGER IF EXISTS documents_ai;
DROP TABLE IF EXISTS documents_instances;
DROP TABLE IF EXISTS documents_vocab;
DROP TABLE IF EXISTS documents_fts;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS index_meta;

CREATE TABLE documents (
	url TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	preview TEXT NOT NULL DEFAULT '',
	terms TEXT NOT NULL
);

CREATE VIRTUAL TABLE documents_fts USING fts5(
	terms,
	content='documents',
	content_rowid='rowid',
	tokenize='unicode61 remove_diacritics 0'
);

CREATE VIRTUAL TABLE documents_vocab USING fts5vocab(documents_fts, 'row');
CREATE VIRTUAL TABLE documents_instances USING fts5vocab(documents_fts, 'instance');

CREATE TRIGGER documents_ai AFTER INSERT ON documents BEGIN
	INSERT INTO documents_fts(rowid, terms) VALUES (new.rowid, new.terms);
END;

CREATE TABLE index_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
