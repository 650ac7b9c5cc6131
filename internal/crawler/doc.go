// Package crawler implements the same-origin crawl engine: URL normalization
// and scoping, the visited set and frontier, HTML extraction, and the
// bounded-batch Scheduler that feeds extracted documents to an index.
package crawler
