package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher issues a single GET for a URL and returns status, content type and body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// DocumentSink receives documents extracted from accepted pages.
// Implementations must be safe for concurrent use.
type DocumentSink interface {
	AddDocument(ctx context.Context, doc Document) error
}

// BlobStore writes and reads keyed artifacts such as index snapshots.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
