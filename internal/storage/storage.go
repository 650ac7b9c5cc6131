// Package storage holds the errors shared by the blob store implementations in
// its subpackages. Each subpackage satisfies crawler.BlobStore.
package storage

import "errors"

var (
	// ErrNotFound is returned by GetObject when no object exists at the path.
	ErrNotFound = errors.New("object not found")
	// ErrPathRequired is returned for blank object paths.
	ErrPathRequired = errors.New("path is required")
)
