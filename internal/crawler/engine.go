package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-mirror/internal/progress"
)

// Engine mirrors one archived snapshot per Run call.
type Engine struct {
	cfg      Config
	resolver SnapshotResolver
	fetcher  ResourceFetcher
	store    BlobStore
	hasher   Hasher
	clock    Clock
	ids      IDGenerator
	emitter  progress.Emitter
	logger   *zap.Logger
}

// NewEngine constructs an Engine. The resolver, fetcher and store are
// required; the remaining collaborators fall back to defaults when nil.
func NewEngine(
	cfg Config,
	resolver SnapshotResolver,
	fetcher ResourceFetcher,
	store BlobStore,
	hasher Hasher,
	clock Clock,
	ids IDGenerator,
	emitter progress.Emitter,
	logger *zap.Logger,
) (*Engine, error) {
	if resolver == nil || fetcher == nil || store == nil {
		return nil, errors.New("crawler: resolver, fetcher and store are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl config: %w", err)
	}
	if cfg.ManifestPath != "" {
		cfg.ManifestPath = cleanStorePath(cfg.ManifestPath)
	}
	if clock == nil {
		clock = defaultClock()
	}
	if ids == nil {
		ids = uuidGenerator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		fetcher:  fetcher,
		store:    store,
		hasher:   hasher,
		clock:    clock,
		ids:      ids,
		emitter:  emitter,
		logger:   logger,
	}, nil
}

// Run resolves the snapshot of targetURL closest to timestamp and mirrors it.
//
// The returned error is non-nil only for whole-run failures: an invalid
// target, a missing snapshot (wrapping ErrSnapshotNotFound) or context
// cancellation. Per-item failures are recorded in the Report.
func (e *Engine) Run(ctx context.Context, targetURL, timestamp string) (Report, error) {
	target, err := ParseTarget(targetURL)
	if err != nil {
		return Report{}, err
	}
	runID, err := e.ids.NewRawID()
	if err != nil {
		return Report{}, fmt.Errorf("new run id: %w", err)
	}
	session := NewSession(runID.String(), target)
	startedAt := e.clock.Now()
	logger := e.logger.With(zap.String("run_id", session.ID), zap.String("target", target.String()))
	e.emit(runID, progress.Event{Stage: progress.StageRunStart, URL: target.String()})

	snapshotURL, err := e.resolver.Resolve(ctx, target.String(), timestamp)
	if err == nil {
		session.Snapshot, err = ParseTarget(snapshotURL)
		if err != nil {
			err = fmt.Errorf("%w: unusable snapshot url: %w", ErrSnapshotNotFound, err)
		}
	}
	if err != nil {
		report := e.finish(session, startedAt)
		logger.Warn("Snapshot resolution failed", zap.Error(err))
		e.emit(runID, progress.Event{Stage: progress.StageRunError, URL: target.String(), Note: err.Error()})
		return report, fmt.Errorf("resolve snapshot for %s: %w", target, err)
	}
	logger.Info("Resolved snapshot", zap.String("snapshot", snapshotURL))

	base := origin(session.Snapshot)
	session.enqueue(Reference{Kind: KindPage, Raw: snapshotURL, URL: snapshotURL}, RootDocument, 0)
	for {
		if err := ctx.Err(); err != nil {
			report := e.finish(session, startedAt)
			e.emit(runID, progress.Event{Stage: progress.StageRunError, URL: target.String(), Note: err.Error()})
			return report, fmt.Errorf("mirror interrupted: %w", err)
		}
		item, ok := session.next()
		if !ok {
			break
		}
		e.process(ctx, runID, session, item, base, logger)
	}

	report := e.finish(session, startedAt)
	if e.cfg.ManifestPath != "" {
		if err := e.writeManifest(ctx, report); err != nil {
			logger.Warn("Failed to write manifest", zap.String("path", e.cfg.ManifestPath), zap.Error(err))
		}
	}
	logger.Info("Mirror complete",
		zap.Int("stored", report.Stored),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	e.emit(runID, progress.Event{
		Stage: progress.StageRunDone,
		URL:   target.String(),
		Dur:   report.FinishedAt.Sub(report.StartedAt),
	})
	return report, nil
}

func (e *Engine) process(
	ctx context.Context,
	runID uuid.UUID,
	s *Session,
	item queueItem,
	base *url.URL,
	logger *zap.Logger,
) {
	s.markFetching(item)
	itemLogger := logger.With(zap.String("url", item.ref.URL), zap.String("kind", string(item.ref.Kind)))

	res, err := e.fetcher.Fetch(ctx, item.ref.URL)
	if err != nil {
		e.fail(runID, s, item, attemptsOf(err), err, itemLogger)
		return
	}
	if _, err := e.store.PutObject(ctx, item.path, res.ContentType, bytes.NewReader(res.Body)); err != nil {
		e.fail(runID, s, item, res.Attempts, &WriteError{Path: item.path, Err: err}, itemLogger)
		return
	}

	var digest string
	if e.hasher != nil {
		if digest, err = e.hasher.Hash(res.Body); err != nil {
			itemLogger.Debug("Failed to hash content", zap.Error(err))
		}
	}
	s.markStored(item, res, digest)
	itemLogger.Info("Downloaded",
		zap.String("path", item.path),
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(res.Body)),
	)
	e.emit(runID, progress.Event{
		Stage:       progress.StageItemStored,
		Kind:        string(item.ref.Kind),
		URL:         item.ref.URL,
		Path:        item.path,
		Bytes:       int64(len(res.Body)),
		Attempts:    res.Attempts,
		StatusClass: progress.ClassifyStatus(res.StatusCode),
		Dur:         res.Duration,
	})

	if !item.ref.Kind.IsPage() || !res.IsHTML() {
		return
	}
	text, ok := res.Text()
	if !ok {
		return
	}
	e.discover(s, item, Extract(text, base))
}

// discover applies scope, bounds and the Visited Set to refs found on item.
func (e *Engine) discover(s *Session, item queueItem, refs []Reference) {
	for _, ref := range refs {
		if !e.inScope(ref, s.Target) {
			s.skip()
			continue
		}
		if s.Visited(ref.URL) {
			continue
		}
		depth := item.depth
		if ref.Kind == KindLink {
			depth++
			if e.cfg.MaxDepth > 0 && depth > e.cfg.MaxDepth {
				s.skip()
				continue
			}
		}
		localPath := MapPath(ref)
		if ref.Kind == KindLink && localPath == RootDocument {
			// Links back to the site root would overwrite the snapshot page.
			s.skip()
			continue
		}
		if e.cfg.MaxItems > 0 && s.Len() >= e.cfg.MaxItems {
			s.skip()
			continue
		}
		s.enqueue(ref, localPath, depth)
	}
}

func (e *Engine) inScope(ref Reference, target *url.URL) bool {
	if ref.Kind.IsAsset() {
		if !isFetchable(ref.URL) {
			return false
		}
		return e.cfg.CrossOriginAssets || IsInternal(ref.Raw, target)
	}
	return IsInternal(ref.Raw, target) && isFetchable(ref.URL)
}

func (e *Engine) fail(runID uuid.UUID, s *Session, item queueItem, attempts int, err error, logger *zap.Logger) {
	s.markFailed(item, attempts, err)
	logger.Warn("Failed to mirror resource",
		zap.String("path", item.path),
		zap.Int("attempt", attempts),
		zap.Error(err),
	)
	evt := progress.Event{
		Stage:       progress.StageItemFailed,
		Kind:        string(item.ref.Kind),
		URL:         item.ref.URL,
		Path:        item.path,
		Attempts:    attempts,
		StatusClass: progress.StatusOther,
		Note:        err.Error(),
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		evt.StatusClass = progress.ClassifyStatus(statusErr.Code)
	}
	e.emit(runID, evt)
}

func (e *Engine) finish(s *Session, startedAt time.Time) Report {
	report := s.report()
	report.StartedAt = startedAt
	report.FinishedAt = e.clock.Now()
	return report
}

func (e *Engine) writeManifest(ctx context.Context, report Report) error {
	for _, item := range report.Items {
		if item.Path == e.cfg.ManifestPath {
			return fmt.Errorf("manifest path %q collides with mirrored %s", e.cfg.ManifestPath, item.URL)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := e.store.PutObject(ctx, e.cfg.ManifestPath, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	return nil
}

func (e *Engine) emit(runID uuid.UUID, evt progress.Event) {
	if e.emitter == nil {
		return
	}
	evt.RunID = [16]byte(runID)
	evt.TS = e.clock.Now()
	e.emitter.Emit(evt)
}
