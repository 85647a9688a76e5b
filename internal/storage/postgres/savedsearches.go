package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"

	"github.com/gocraft/dbr/v2"
	"go.uber.org/zap"
)

// CreateSavedSearch stores a saved search for a user. Duplicate descriptor
// content across a user's searches is allowed.
func (s *Store) CreateSavedSearch(ctx context.Context, userID int64, name string, d *models.QueryDescriptor, notify bool) (*models.SavedSearch, error) {
	filters, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal filters: %w", err)
	}

	query := `
		INSERT INTO saved_searches (user_id, name, filters, notification_enabled, created_at)
		VALUES (?, ?, ?, ?, NOW())
		RETURNING id, created_at
	`

	saved := &models.SavedSearch{
		UserID:              userID,
		Name:                name,
		Filters:             models.RawJSON(filters),
		NotificationEnabled: notify,
	}

	err = s.sess.
		SelectBySql(query, userID, name, string(filters), notify).
		LoadOneContext(ctx, saved)
	if err != nil {
		s.logger.Error("failed to create saved search",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil, errs.Unavailable("create saved search", err)
	}

	s.logger.Info("saved search created",
		zap.Int64("user_id", userID),
		zap.Int64("saved_search_id", saved.ID),
		zap.String("name", name),
	)

	return saved, nil
}

func (s *Store) ListSavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error) {
	var searches []models.SavedSearch

	_, err := s.sess.
		Select("*").
		From("saved_searches").
		Where("user_id = ?", userID).
		OrderBy("created_at DESC").
		LoadContext(ctx, &searches)
	if err != nil {
		s.logger.Error("failed to list saved searches",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil, errs.Unavailable("list saved searches", err)
	}

	return searches, nil
}

func (s *Store) GetSavedSearch(ctx context.Context, id int64) (*models.SavedSearch, error) {
	var saved models.SavedSearch

	err := s.sess.
		Select("*").
		From("saved_searches").
		Where("id = ?", id).
		LoadOneContext(ctx, &saved)
	if err == dbr.ErrNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to get saved search",
			zap.Int64("saved_search_id", id),
			zap.Error(err),
		)
		return nil, errs.Unavailable("get saved search", err)
	}

	return &saved, nil
}

// DeleteSavedSearch removes a saved search after checking ownership.
func (s *Store) DeleteSavedSearch(ctx context.Context, userID, id int64) error {
	saved, err := s.GetSavedSearch(ctx, id)
	if err != nil {
		return err
	}

	if saved.UserID != userID {
		return errs.ErrForbidden
	}

	if _, err := s.sess.DeleteFrom("saved_searches").Where("id = ?", id).ExecContext(ctx); err != nil {
		s.logger.Error("failed to delete saved search",
			zap.Int64("saved_search_id", id),
			zap.Error(err),
		)
		return errs.Unavailable("delete saved search", err)
	}

	s.logger.Info("saved search deleted",
		zap.Int64("user_id", userID),
		zap.Int64("saved_search_id", id),
	)

	return nil
}

// ActiveSavedSearches returns saved searches eligible for alert matching:
// notifications enabled and the owner account still active.
func (s *Store) ActiveSavedSearches(ctx context.Context) ([]models.SavedSearch, error) {
	var searches []models.SavedSearch

	_, err := s.sess.
		SelectBySql(`
			SELECT ss.id, ss.user_id, ss.name, ss.filters, ss.notification_enabled,
			       ss.last_notified_at, ss.created_at
			FROM saved_searches ss
			JOIN users u ON u.id = ss.user_id
			WHERE ss.notification_enabled = TRUE AND u.status = 'active'
			ORDER BY ss.id`).
		LoadContext(ctx, &searches)
	if err != nil {
		s.logger.Error("failed to list active saved searches", zap.Error(err))
		return nil, errs.Unavailable("active saved searches", err)
	}

	return searches, nil
}

// AdvanceWatermark moves last_notified_at forward to ts. A timestamp at or
// before the current watermark is ignored: the watermark is monotonically
// non-decreasing.
func (s *Store) AdvanceWatermark(ctx context.Context, id int64, ts time.Time) error {
	result, err := s.sess.
		UpdateBySql(`
			UPDATE saved_searches
			SET last_notified_at = ?
			WHERE id = ? AND (last_notified_at IS NULL OR last_notified_at < ?)`,
			ts, id, ts).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to advance watermark",
			zap.Int64("saved_search_id", id),
			zap.Error(err),
		)
		return errs.Unavailable("advance watermark", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		s.logger.Debug("watermark not advanced, timestamp not newer",
			zap.Int64("saved_search_id", id),
			zap.Time("timestamp", ts),
		)
	}

	return nil
}

// TryLockSavedSearch takes the session advisory lock serializing match
// passes for one saved search. Returns ok=false without blocking when
// another matcher holds it. The returned release func must be called once.
func (s *Store) TryLockSavedSearch(ctx context.Context, id int64) (release func(), ok bool, err error) {
	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return nil, false, errs.Unavailable("acquire lock connection", err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&locked); err != nil {
		conn.Close()
		return nil, false, errs.Unavailable("try advisory lock", err)
	}

	if !locked {
		conn.Close()
		return nil, false, nil
	}

	release = func() {
		// unlock on a fresh context so a cancelled matching pass still releases
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", id); err != nil {
			s.logger.Warn("failed to release advisory lock",
				zap.Int64("saved_search_id", id),
				zap.Error(err),
			)
		}
		conn.Close()
	}

	return release, true, nil
}

func (s *Store) CountActiveSavedSearches(ctx context.Context) (int64, error) {
	var count int64

	err := s.sess.
		SelectBySql(`
			SELECT COUNT(*)
			FROM saved_searches ss
			JOIN users u ON u.id = ss.user_id
			WHERE ss.notification_enabled = TRUE AND u.status = 'active'`).
		LoadOneContext(ctx, &count)
	if err != nil {
		return 0, errs.Unavailable("count active saved searches", err)
	}

	return count, nil
}
