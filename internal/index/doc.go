// Package index tokenizes crawled documents into an inverted index and answers
// frequency-ranked queries over it.
//
// Two implementations satisfy Index: Inverted, a hand-built term to postings
// map persisted as a single snapshot blob, and the SQLite FTS5 engine in the
// sqlite subpackage. The variant is chosen at construction time.
//
// Documents are cached by AddDocument, which is safe for concurrent use, and
// only turned into postings by a single Build call. After Build the index is
// read-only and Search may be called from any goroutine.
package index
