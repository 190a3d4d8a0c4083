// Package backend provides the on-disk storage used to stage objects fetched
// from the remote store.
package backend

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = errors.New("not found")

// Backend defines the interface for storage backends.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Read retrieves data at the given key.
	// Returns ErrNotFound if the key does not exist.
	// The caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// StagedWriter is an in-progress write. Nothing is visible at the key until
// Close returns nil; Abort discards everything written so far.
type StagedWriter interface {
	io.WriteCloser

	// Abort cancels the write. It is a no-op after Close or a previous Abort.
	Abort() error
}

// WriterBackend extends Backend with staged writes.
type WriterBackend interface {
	Backend

	// Writer returns a StagedWriter for the given key.
	// The write is only committed when Close returns nil.
	// If Close returns an error, the write should be considered failed.
	Writer(ctx context.Context, key string) (StagedWriter, error)
}
