package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/crawler"
)

// SnapshotVersion is the envelope format written by Save.
const SnapshotVersion = 1

const snapshotContentType = "application/json"

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ErrInvalidName is returned for index names that cannot be used as a blob key.
var ErrInvalidName = errors.New("invalid index name")

type snapshot struct {
	Version   int                  `json:"version"`
	Name      string               `json:"name"`
	BuiltAt   time.Time            `json:"built_at"`
	Documents int                  `json:"documents"`
	Postings  map[string][]Posting `json:"postings"`
}

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	URI   string `json:"uri"`
	Hash  string `json:"hash"`
	Bytes int    `json:"bytes"`
}

// SnapshotKey returns the blob key of the named snapshot.
func SnapshotKey(prefix, name string) string {
	return path.Join(prefix, name+".json")
}

// Save writes the built index to store as a single JSON blob keyed by name.
func (i *Inverted) Save(ctx context.Context, store crawler.BlobStore, name string) (SnapshotInfo, error) {
	if !validName.MatchString(name) {
		return SnapshotInfo{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	b := i.state.Load()
	if b == nil {
		return SnapshotInfo{}, ErrNotBuilt
	}

	payload, err := json.Marshal(snapshot{
		Version:   SnapshotVersion,
		Name:      name,
		BuiltAt:   b.builtAt,
		Documents: b.documents,
		Postings:  b.postings,
	})
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("encode snapshot: %w", err)
	}
	digest, err := i.opts.hasher.Hash(payload)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("hash snapshot: %w", err)
	}

	key := SnapshotKey(i.opts.prefix, name)
	uri, err := store.PutObject(ctx, key, snapshotContentType, bytes.NewReader(payload))
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("store snapshot %s: %w", key, err)
	}

	i.opts.logger.Info("index snapshot saved",
		zap.String("uri", uri),
		zap.String("sha256", digest),
		zap.Int("bytes", len(payload)),
	)
	return SnapshotInfo{URI: uri, Hash: digest, Bytes: len(payload)}, nil
}

// Load reads a snapshot written by Save and returns a built, read-only index.
func Load(ctx context.Context, store crawler.BlobStore, name string, opts ...Option) (*Inverted, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	idx := NewInverted(opts...)
	key := SnapshotKey(idx.opts.prefix, name)

	rc, err := store.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot %s: unsupported version %d", key, snap.Version)
	}
	if snap.Postings == nil {
		snap.Postings = map[string][]Posting{}
	}

	idx.sealed = true
	idx.state.Store(&built{
		postings:  snap.Postings,
		documents: snap.Documents,
		builtAt:   snap.BuiltAt,
	})
	idx.opts.logger.Info("index snapshot loaded",
		zap.String("key", key),
		zap.Int("documents", snap.Documents),
		zap.Int("terms", len(snap.Postings)),
	)
	return idx, nil
}
