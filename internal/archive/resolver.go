// Package archive resolves a site and time marker to an archived snapshot URL
// through the Wayback Machine availability API.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-mirror/internal/crawler"
)

// DefaultEndpoint is the public availability API.
const DefaultEndpoint = "https://archive.org/wayback/available"

var timestampPattern = regexp.MustCompile(`^\d{4,14}$`)

// Config controls the lookup.
type Config struct {
	Endpoint    string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Resolver implements crawler.SnapshotResolver.
type Resolver struct {
	cfg     Config
	fetcher crawler.Fetcher
	clock   crawler.Clock
	logger  *zap.Logger
}

type availability struct {
	ArchivedSnapshots struct {
		Closest *struct {
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
			Available *bool  `json:"available"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// errAbsent marks a well-formed lookup that carried no snapshot.
var errAbsent = errors.New("archive returned no closest snapshot")

// New builds a Resolver.
func New(cfg Config, fetcher crawler.Fetcher, clock crawler.Clock, logger *zap.Logger) (*Resolver, error) {
	if fetcher == nil {
		return nil, errors.New("archive: fetcher is required")
	}
	if clock == nil {
		return nil, errors.New("archive: clock is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("archive endpoint: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = crawler.DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, fetcher: fetcher, clock: clock, logger: logger}, nil
}

// ValidateTimestamp accepts an empty marker or 4 to 14 digits (YYYY through
// YYYYMMDDhhmmss).
func ValidateTimestamp(ts string) error {
	if ts == "" || timestampPattern.MatchString(ts) {
		return nil
	}
	return fmt.Errorf("timestamp %q must be 4 to 14 digits (YYYYMM...)", ts)
}

// Resolve returns the archived URL closest to timestamp. Lookup failures,
// including an absent record, wrap crawler.ErrSnapshotNotFound.
func (r *Resolver) Resolve(ctx context.Context, targetURL, timestamp string) (string, error) {
	if err := ValidateTimestamp(timestamp); err != nil {
		return "", err
	}
	lookup := r.lookupURL(targetURL, timestamp)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		snapshot, err := r.lookup(ctx, lookup)
		if err == nil {
			return snapshot, nil
		}
		if errors.Is(err, errAbsent) {
			return "", fmt.Errorf("%w for %s", crawler.ErrSnapshotNotFound, targetURL)
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, crawler.ErrBodyTooLarge) {
			break
		}
		r.logger.Warn("Snapshot lookup failed",
			zap.String("url", targetURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < r.cfg.MaxAttempts {
			if err := r.clock.Sleep(ctx, r.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}
	return "", fmt.Errorf("%w: %w", crawler.ErrSnapshotNotFound, lastErr)
}

func (r *Resolver) lookupURL(targetURL, timestamp string) string {
	q := url.Values{}
	q.Set("url", targetURL)
	if timestamp != "" {
		q.Set("timestamp", timestamp)
	}
	sep := "?"
	if strings.Contains(r.cfg.Endpoint, "?") {
		sep = "&"
	}
	return r.cfg.Endpoint + sep + q.Encode()
}

func (r *Resolver) lookup(ctx context.Context, lookupURL string) (string, error) {
	resp, err := r.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     lookupURL,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return "", fmt.Errorf("availability request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &crawler.StatusError{Code: resp.StatusCode}
	}
	var body availability
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("decode availability response: %w", err)
	}
	closest := body.ArchivedSnapshots.Closest
	if closest == nil || closest.URL == "" {
		return "", errAbsent
	}
	if closest.Available != nil && !*closest.Available {
		return "", errAbsent
	}
	return closest.URL, nil
}
