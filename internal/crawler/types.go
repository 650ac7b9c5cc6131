package crawler

import "time"

// Document is the unit of indexing produced for every accepted page.
type Document struct {
	Title    string `json:"title"`
	Preview  string `json:"preview"`
	FullText string `json:"-"`
	URL      string `json:"url"`
}

// FetchResult is the result returned by a Fetcher implementation.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Stats summarizes a single crawl run.
type Stats struct {
	RunID      string        `json:"run_id"`
	Seed       string        `json:"seed"`
	Dispatched int           `json:"dispatched"`
	Indexed    int           `json:"indexed"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	OutOfScope int           `json:"out_of_scope"`
	Duration   time.Duration `json:"duration"`
}

// IndexBuilt is published once an index snapshot has been persisted.
type IndexBuilt struct {
	RunID        string    `json:"run_id"`
	Seed         string    `json:"seed"`
	IndexName    string    `json:"index_name"`
	Documents    int       `json:"documents"`
	Terms        int       `json:"terms"`
	SnapshotURI  string    `json:"snapshot_uri"`
	SnapshotHash string    `json:"snapshot_hash"`
	BuiltAt      time.Time `json:"built_at"`
}
