// Package alerts implements the saved-search alert pipeline: the matcher
// that turns newly created listings into queued notifications, and the
// dispatcher that drains the queue through the mail transport.
package alerts

import (
	"context"
	"fmt"
	"time"

	"marketplace-search/internal/models"

	"go.uber.org/zap"
)

// Registry is the saved-search store surface the matcher needs.
type Registry interface {
	ActiveSavedSearches(ctx context.Context) ([]models.SavedSearch, error)
	TryLockSavedSearch(ctx context.Context, id int64) (release func(), ok bool, err error)
	AdvanceWatermark(ctx context.Context, id int64, ts time.Time) error
}

// MatchSource evaluates a saved search's filter predicate against listings
// created after the watermark. It bypasses the result cache so newly
// created listings are always visible.
type MatchSource interface {
	MatchListingsSince(ctx context.Context, d *models.QueryDescriptor, since *time.Time, limit int) ([]models.Listing, error)
}

// Queue enqueues notification items. Enqueue is idempotent per
// (saved search, listing) pair while a non-failed item exists.
type Queue interface {
	EnqueueNotification(ctx context.Context, savedSearchID, listingID int64) (bool, error)
}

type MatcherConfig struct {
	// MinInterval skips saved searches whose watermark is younger than
	// this, so overlapping passes don't re-evaluate the same window.
	// Zero disables the guard.
	MinInterval time.Duration
	// MatchLimit caps how many listings one saved search can enqueue in
	// one pass. On a full page the watermark advances only past the last
	// enqueued listing, so the overflow is picked up next pass.
	MatchLimit int
	// DryRun evaluates and reports without enqueueing or advancing.
	DryRun bool
}

// MatchStats aggregates one matcher pass.
type MatchStats struct {
	Evaluated int
	Skipped   int
	Enqueued  int
	Errors    int
}

type Matcher struct {
	registry Registry
	source   MatchSource
	queue    Queue
	cfg      MatcherConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewMatcher(registry Registry, source MatchSource, queue Queue, cfg MatcherConfig, logger *zap.Logger) *Matcher {
	if cfg.MatchLimit < 1 {
		cfg.MatchLimit = 100
	}
	return &Matcher{
		registry: registry,
		source:   source,
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one matching pass over all active saved searches. A failure
// on one saved search never blocks the others; per-search errors are
// counted and logged. Only a systemic failure (the registry itself
// unreachable) returns an error.
func (m *Matcher) Run(ctx context.Context) (*MatchStats, error) {
	searches, err := m.registry.ActiveSavedSearches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active saved searches: %w", err)
	}

	stats := &MatchStats{}

	for i := range searches {
		if ctx.Err() != nil {
			m.logger.Info("matcher pass interrupted", zap.Int("remaining", len(searches)-i))
			break
		}

		enqueued, err := m.matchOne(ctx, &searches[i])
		switch {
		case err == errSkipped:
			stats.Skipped++
		case err != nil:
			stats.Errors++
			m.logger.Error("failed to match saved search",
				zap.Int64("saved_search_id", searches[i].ID),
				zap.Error(err),
			)
		default:
			stats.Evaluated++
			stats.Enqueued += enqueued
		}
	}

	m.logger.Info("matcher pass finished",
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("enqueued", stats.Enqueued),
		zap.Int("errors", stats.Errors),
		zap.Bool("dry_run", m.cfg.DryRun),
	)

	return stats, nil
}

// errSkipped marks a saved search that was deliberately not evaluated.
var errSkipped = fmt.Errorf("skipped")

// matchOne evaluates one saved search and enqueues its new matches. The
// watermark advances to the pass-start instant, and only after every match
// is durably enqueued: a crash in between causes a harmless idempotent
// re-evaluation next pass, never a lost notification. A listing created
// while this pass runs lands after the new watermark and is found next pass.
// When the match page is full, the watermark advances only to the creation
// time of the last enqueued listing, so the listings beyond the cap stay
// ahead of the strict created_at > watermark predicate.
func (m *Matcher) matchOne(ctx context.Context, ss *models.SavedSearch) (int, error) {
	passStart := m.now()

	if m.cfg.MinInterval > 0 && ss.LastNotifiedAt != nil &&
		passStart.Sub(*ss.LastNotifiedAt) < m.cfg.MinInterval {
		return 0, errSkipped
	}

	release, ok, err := m.registry.TryLockSavedSearch(ctx, ss.ID)
	if err != nil {
		return 0, fmt.Errorf("lock: %w", err)
	}
	if !ok {
		// another matcher is working this saved search
		return 0, errSkipped
	}
	defer release()

	descriptor, err := ss.Descriptor()
	if err != nil {
		return 0, fmt.Errorf("decode filters: %w", err)
	}

	matches, err := m.source.MatchListingsSince(ctx, descriptor, ss.LastNotifiedAt, m.cfg.MatchLimit)
	if err != nil {
		return 0, fmt.Errorf("evaluate: %w", err)
	}

	if m.cfg.DryRun {
		m.logger.Info("dry run: would enqueue",
			zap.Int64("saved_search_id", ss.ID),
			zap.Int("matches", len(matches)),
		)
		return len(matches), nil
	}

	enqueued := 0
	for _, listing := range matches {
		created, err := m.queue.EnqueueNotification(ctx, ss.ID, listing.ID)
		if err != nil {
			// partial enqueue must not advance the watermark; the full
			// window is retried next pass and dedup drops what made it in
			return enqueued, fmt.Errorf("enqueue listing %d: %w", listing.ID, err)
		}
		if created {
			enqueued++
		}
	}

	watermark := passStart
	if len(matches) == m.cfg.MatchLimit {
		watermark = matches[len(matches)-1].CreatedAt
	}

	if err := m.registry.AdvanceWatermark(ctx, ss.ID, watermark); err != nil {
		return enqueued, fmt.Errorf("advance watermark: %w", err)
	}

	if enqueued > 0 {
		m.logger.Info("enqueued alert notifications",
			zap.Int64("saved_search_id", ss.ID),
			zap.Int("count", enqueued),
		)
	}

	return enqueued, nil
}
