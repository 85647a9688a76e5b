package postgres

import (
	"context"
	"time"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"

	"github.com/gocraft/dbr/v2"
	"go.uber.org/zap"
)

const queueColumns = `id, saved_search_id, listing_id, status, attempts,
	next_attempt_at, created_at, updated_at, last_error, sent_at`

// EnqueueNotification inserts a pending queue item for the pair, unless a
// non-failed item for it already exists. The partial unique index on
// (saved_search_id, listing_id) WHERE status <> 'failed' makes this
// idempotent under matcher re-runs. Returns true when a new item was queued.
func (s *Store) EnqueueNotification(ctx context.Context, savedSearchID, listingID int64) (bool, error) {
	result, err := s.sess.
		InsertBySql(`
			INSERT INTO notification_queue
				(saved_search_id, listing_id, status, attempts, next_attempt_at, created_at, updated_at)
			VALUES (?, ?, 'pending', 0, NOW(), NOW(), NOW())
			ON CONFLICT (saved_search_id, listing_id) WHERE status <> 'failed' DO NOTHING`,
			savedSearchID, listingID).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to enqueue notification",
			zap.Int64("saved_search_id", savedSearchID),
			zap.Int64("listing_id", listingID),
			zap.Error(err),
		)
		return false, errs.Unavailable("enqueue notification", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ClaimPending atomically claims up to batchSize due pending items, oldest
// first, moving them to sending and bumping the attempt counter. SKIP LOCKED
// keeps concurrent dispatchers from claiming the same item.
func (s *Store) ClaimPending(ctx context.Context, batchSize int) ([]models.QueueItem, error) {
	var items []models.QueueItem

	_, err := s.sess.
		SelectBySql(`
			UPDATE notification_queue
			SET status = 'sending', attempts = attempts + 1, updated_at = NOW()
			WHERE id IN (
				SELECT id FROM notification_queue
				WHERE status = 'pending' AND next_attempt_at <= NOW()
				ORDER BY created_at ASC
				LIMIT ?
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+queueColumns,
			batchSize).
		LoadContext(ctx, &items)
	if err != nil {
		s.logger.Error("failed to claim pending notifications", zap.Error(err))
		return nil, errs.Unavailable("claim pending", err)
	}

	return items, nil
}

// NotificationContent loads everything needed to render and address the
// alert for a claimed item.
func (s *Store) NotificationContent(ctx context.Context, item models.QueueItem) (*models.NotificationContent, error) {
	var row struct {
		SearchID       int64    `db:"search_id"`
		SearchName     string   `db:"search_name"`
		OwnerEmail     string   `db:"owner_email"`
		ListingID      int64    `db:"listing_id"`
		Title          string   `db:"title"`
		Description    string   `db:"description"`
		Price          float64  `db:"price"`
		Currency       string   `db:"currency"`
		Condition      string   `db:"condition"`
		Status         string   `db:"status"`
		CategoryID     int64    `db:"category_id"`
		Location       string   `db:"location"`
		Latitude       *float64 `db:"latitude"`
		Longitude      *float64 `db:"longitude"`
		CreatedAt      time.Time `db:"created_at"`
		IsFeatured     bool     `db:"is_featured"`
		FavoritesCount int      `db:"favorites_count"`
	}

	err := s.sess.
		SelectBySql(`
			SELECT ss.id AS search_id, ss.name AS search_name, u.email AS owner_email,
			       l.id AS listing_id, l.title, l.description, l.price, l.currency,
			       l.condition, l.status, l.category_id, l.location, l.latitude,
			       l.longitude, l.created_at, l.is_featured, l.favorites_count
			FROM saved_searches ss
			JOIN users u ON u.id = ss.user_id
			JOIN listings l ON l.id = ?
			WHERE ss.id = ?`,
			item.ListingID, item.SavedSearchID).
		LoadOneContext(ctx, &row)
	if err == dbr.ErrNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to load notification content",
			zap.Int64("queue_item_id", item.ID),
			zap.Error(err),
		)
		return nil, errs.Unavailable("notification content", err)
	}

	return &models.NotificationContent{
		Item:       item,
		SearchID:   row.SearchID,
		SearchName: row.SearchName,
		OwnerEmail: row.OwnerEmail,
		Listing: models.Listing{
			ID:             row.ListingID,
			Title:          row.Title,
			Description:    row.Description,
			Price:          row.Price,
			Currency:       row.Currency,
			Condition:      row.Condition,
			Status:         row.Status,
			CategoryID:     row.CategoryID,
			Location:       row.Location,
			Latitude:       row.Latitude,
			Longitude:      row.Longitude,
			CreatedAt:      row.CreatedAt,
			IsFeatured:     row.IsFeatured,
			FavoritesCount: row.FavoritesCount,
		},
	}, nil
}

// MarkSent finishes a sending item successfully.
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	_, err := s.sess.
		UpdateBySql(`
			UPDATE notification_queue
			SET status = 'sent', sent_at = NOW(), updated_at = NOW(), last_error = NULL
			WHERE id = ? AND status = 'sending'`,
			id).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to mark notification sent",
			zap.Int64("queue_item_id", id),
			zap.Error(err),
		)
		return errs.Unavailable("mark sent", err)
	}

	return nil
}

// ReleaseForRetry returns a sending item to pending with a backoff deadline.
func (s *Store) ReleaseForRetry(ctx context.Context, id int64, nextAttempt time.Time, sendErr string) error {
	_, err := s.sess.
		UpdateBySql(`
			UPDATE notification_queue
			SET status = 'pending', next_attempt_at = ?, updated_at = NOW(), last_error = ?
			WHERE id = ? AND status = 'sending'`,
			nextAttempt, sendErr, id).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to release notification for retry",
			zap.Int64("queue_item_id", id),
			zap.Error(err),
		)
		return errs.Unavailable("release for retry", err)
	}

	return nil
}

// ReleaseUnattempted returns a claimed item to pending without consuming
// retry budget: the claim's attempt increment is rolled back. Used when a
// shutdown interrupts a batch before the item's send was tried.
func (s *Store) ReleaseUnattempted(ctx context.Context, id int64) error {
	_, err := s.sess.
		UpdateBySql(`
			UPDATE notification_queue
			SET status = 'pending', attempts = attempts - 1, next_attempt_at = NOW(), updated_at = NOW()
			WHERE id = ? AND status = 'sending'`,
			id).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to release unattempted notification",
			zap.Int64("queue_item_id", id),
			zap.Error(err),
		)
		return errs.Unavailable("release unattempted", err)
	}

	return nil
}

// MarkFailed parks an item after its retry budget is exhausted. Failed items
// are retained for operator inspection, never deleted automatically.
func (s *Store) MarkFailed(ctx context.Context, id int64, sendErr string) error {
	_, err := s.sess.
		UpdateBySql(`
			UPDATE notification_queue
			SET status = 'failed', updated_at = NOW(), last_error = ?
			WHERE id = ? AND status = 'sending'`,
			sendErr, id).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to mark notification failed",
			zap.Int64("queue_item_id", id),
			zap.Error(err),
		)
		return errs.Unavailable("mark failed", err)
	}

	return nil
}

// RequeueStale returns items stuck in sending since before cutoff to
// pending. Covers dispatcher crashes mid-send.
func (s *Store) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.sess.
		UpdateBySql(`
			UPDATE notification_queue
			SET status = 'pending', next_attempt_at = NOW(), updated_at = NOW()
			WHERE status = 'sending' AND updated_at < ?`,
			cutoff).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to requeue stale notifications", zap.Error(err))
		return 0, errs.Unavailable("requeue stale", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		s.logger.Warn("requeued stale sending notifications", zap.Int64("count", rows))
	}

	return rows, nil
}

// QueueStats reports queue depth by status.
func (s *Store) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	var stats models.QueueStats

	err := s.sess.
		SelectBySql(`
			SELECT
				COUNT(*) FILTER (WHERE status = 'pending') AS pending,
				COUNT(*) FILTER (WHERE status = 'sending') AS sending,
				COUNT(*) FILTER (WHERE status = 'sent')    AS sent,
				COUNT(*) FILTER (WHERE status = 'failed')  AS failed
			FROM notification_queue`).
		LoadOneContext(ctx, &stats)
	if err != nil {
		return nil, errs.Unavailable("queue stats", err)
	}

	return &stats, nil
}

// TopActiveSavedSearches lists the saved searches producing the most queue
// items, for the operator stats surface.
func (s *Store) TopActiveSavedSearches(ctx context.Context, limit int) ([]models.SavedSearchActivity, error) {
	var rows []models.SavedSearchActivity

	_, err := s.sess.
		SelectBySql(`
			SELECT ss.id AS saved_search_id, ss.name, COUNT(q.id) AS matches
			FROM notification_queue q
			JOIN saved_searches ss ON ss.id = q.saved_search_id
			GROUP BY ss.id, ss.name
			ORDER BY matches DESC
			LIMIT ?`,
			limit).
		LoadContext(ctx, &rows)
	if err != nil {
		return nil, errs.Unavailable("top active saved searches", err)
	}

	return rows, nil
}

// CleanupOld removes terminal (sent or failed) items created before cutoff.
// With dryRun it only counts what would be removed.
func (s *Store) CleanupOld(ctx context.Context, cutoff time.Time, dryRun bool) (int64, error) {
	if dryRun {
		var count int64
		err := s.sess.
			SelectBySql(`
				SELECT COUNT(*) FROM notification_queue
				WHERE status IN ('sent', 'failed') AND created_at < ?`,
				cutoff).
			LoadOneContext(ctx, &count)
		if err != nil {
			return 0, errs.Unavailable("cleanup dry run", err)
		}
		return count, nil
	}

	result, err := s.sess.
		DeleteBySql(`
			DELETE FROM notification_queue
			WHERE status IN ('sent', 'failed') AND created_at < ?`,
			cutoff).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to clean up notification queue", zap.Error(err))
		return 0, errs.Unavailable("cleanup", err)
	}

	rows, _ := result.RowsAffected()

	s.logger.Info("cleaned up old notifications",
		zap.Int64("count", rows),
		zap.Time("cutoff", cutoff),
	)

	return rows, nil
}
