package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSnapshotNotFound is returned when the archive has no usable snapshot for
// the target. It is the only failure that aborts a whole run.
var ErrSnapshotNotFound = errors.New("no snapshot found")

// ErrBodyTooLarge is returned by a Fetcher when a response exceeds its body
// limit. The body is discarded rather than truncated; retrying cannot help.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Code >= 500:
		return true
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// FetchError is returned once every attempt for a URL has failed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// WriteError wraps a storage failure for a mapped path.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func attemptsOf(err error) int {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Attempts
	}
	return 0
}
