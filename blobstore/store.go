// Package blobstore abstracts durable storage for index snapshots.
//
// A Store holds immutable, named blobs. The local filesystem implementation
// is the default; S3 and MinIO implementations live in subpackages so their
// SDK dependencies stay out of the import graph when unused.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error that satisfies
// errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("blob not found")

// Store is an abstraction for reading and writing immutable blobs.
type Store interface {
	// Put writes a blob atomically: a reader never observes a partial blob.
	Put(ctx context.Context, name string, data []byte) error

	// Get reads a blob in full.
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of blobs starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
