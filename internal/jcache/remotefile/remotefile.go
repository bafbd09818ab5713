// Package remotefile defines the collaborator interface the cached file
// facade falls back to on a cache miss or a disabled journal, along with
// an in-memory fake (for tests and other_examples-style offline usage)
// and an S3-backed implementation.
package remotefile

import (
	"context"
	"time"
)

// Stat describes the remote object's identity as needed to validate a
// cached journal against it.
type Stat struct {
	Size  uint64
	Mtime time.Time
}

// RemoteFile is the upstream file the cache sits in front of. Every method
// may block; callers are expected to run them off whatever goroutine can
// afford to wait.
type RemoteFile interface {
	// Stat returns the remote object's current size and modification time.
	Stat(ctx context.Context) (Stat, error)

	// Pread reads len(buf) bytes (short reads at EOF are legal, mirroring
	// io.ReaderAt) starting at offset.
	Pread(ctx context.Context, buf []byte, offset uint64) (int, error)

	// VectorRead fills each chunk's designated region of buf, in request
	// order, concatenated; buf must be exactly the sum of chunk lengths.
	VectorRead(ctx context.Context, buf []byte, chunks []Chunk) error

	// URL identifies the object, used as the cache key.
	URL() string

	// Close releases any resources held by the remote connection.
	Close() error
}

// Chunk mirrors vectorcache.Chunk without importing it, to keep this
// package free of a dependency on the cache layer it is a collaborator to.
type Chunk struct {
	Offset uint64
	Length uint64
}
