// Package storage provides artifact archival capabilities. Upstream
// artifacts expire on the provider side, so operators can keep a copy in S3
// or on local disk. It defines the Archiver interface (port) for hexagonal
// architecture and implementations for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Archiver defines the interface for archiving finished video artifacts.
type Archiver interface {
	// Archive stores the artifact bytes under the given key and returns a
	// client-reachable URL for the copy, or an empty string when the
	// backend has no URL to offer (e.g. local disk).
	Archive(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
