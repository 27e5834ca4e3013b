package crawler

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Fetcher performs a single HTTP GET and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// ResourceFetcher performs a logical fetch that may span several attempts.
type ResourceFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Resource, error)
}

// SnapshotResolver maps a target URL and optional time marker to an archived URL.
// Implementations return an error wrapping ErrSnapshotNotFound when none exists.
type SnapshotResolver interface {
	Resolve(ctx context.Context, targetURL string, timestamp string) (string, error)
}

// BlobStore writes mirrored artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes content digests recorded in the run report.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and waits; tests substitute both.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
