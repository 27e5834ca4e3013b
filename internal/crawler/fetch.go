package crawler

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// Resource is a successfully fetched URL.
type Resource struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
	Duration    time.Duration
}

// MediaType returns the declared media type, sniffing the body when the
// server sent none.
func (r Resource) MediaType() string {
	ct := r.ContentType
	if strings.TrimSpace(ct) == "" {
		ct = http.DetectContentType(r.Body)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType, _, _ = strings.Cut(ct, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// IsHTML reports whether the body should be scanned for references.
func (r Resource) IsHTML() bool {
	switch r.MediaType() {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// IsText reports whether the body is plausibly textual.
func (r Resource) IsText() bool {
	mt := r.MediaType()
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case strings.HasSuffix(mt, "+xml"), strings.HasSuffix(mt, "+json"):
		return true
	case mt == "application/xml", mt == "application/json",
		mt == "application/javascript", mt == "application/x-javascript":
		return true
	default:
		return false
	}
}

// Text returns the body decoded to UTF-8. The second value is false for
// binary resources, which carry raw bytes only.
func (r Resource) Text() (string, bool) {
	if !r.IsText() {
		return "", false
	}
	reader, err := charset.NewReader(bytes.NewReader(r.Body), r.ContentType)
	if err != nil {
		return string(r.Body), true
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(r.Body), true
	}
	return string(decoded), true
}

// RetryingFetcher wraps a Fetcher with a RetryPolicy and status handling.
type RetryingFetcher struct {
	fetcher         Fetcher
	policy          RetryPolicy
	clock           Clock
	acceptAnyStatus bool
	logger          *zap.Logger
}

// NewRetryingFetcher builds a RetryingFetcher. When acceptAnyStatus is true a
// non-2xx response is returned as a Resource instead of a StatusError.
func NewRetryingFetcher(
	fetcher Fetcher,
	policy RetryPolicy,
	clock Clock,
	acceptAnyStatus bool,
	logger *zap.Logger,
) *RetryingFetcher {
	if policy == nil {
		policy = NewFixedRetryPolicy(DefaultMaxAttempts, DefaultRetryDelay)
	}
	if clock == nil {
		clock = defaultClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{
		fetcher:         fetcher,
		policy:          policy,
		clock:           clock,
		acceptAnyStatus: acceptAnyStatus,
		logger:          logger,
	}
}

// Fetch issues GETs until one succeeds or the policy gives up. The returned
// error is always a *FetchError carrying the attempt count and last cause.
func (f *RetryingFetcher) Fetch(ctx context.Context, rawURL string) (Resource, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.fetcher.Fetch(ctx, FetchRequest{URL: rawURL})
		if err == nil {
			err = f.checkStatus(resp)
		}
		if err == nil {
			return Resource{
				URL:         rawURL,
				FinalURL:    resp.FinalURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Headers.Get("Content-Type"),
				Body:        resp.Body,
				Attempts:    attempt,
				Duration:    resp.Duration,
			}, nil
		}
		if ctx.Err() != nil || !f.policy.ShouldRetry(err, attempt) {
			return Resource{}, &FetchError{URL: rawURL, Attempts: attempt, Err: err}
		}
		delay := f.policy.Backoff(attempt)
		f.logger.Debug("Retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := f.clock.Sleep(ctx, delay); sleepErr != nil {
			return Resource{}, &FetchError{URL: rawURL, Attempts: attempt, Err: sleepErr}
		}
	}
}

func (f *RetryingFetcher) checkStatus(resp FetchResponse) error {
	if f.acceptAnyStatus {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
