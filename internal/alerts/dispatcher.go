package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"

	"go.uber.org/zap"
)

// QueueStore is the notification queue surface the dispatcher drives.
type QueueStore interface {
	ClaimPending(ctx context.Context, batchSize int) ([]models.QueueItem, error)
	NotificationContent(ctx context.Context, item models.QueueItem) (*models.NotificationContent, error)
	MarkSent(ctx context.Context, id int64) error
	ReleaseForRetry(ctx context.Context, id int64, nextAttempt time.Time, sendErr string) error
	ReleaseUnattempted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, sendErr string) error
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Transport delivers one rendered notification. Implementations must bound
// each send with a timeout; a timeout is a send failure, not a hang.
type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type DispatcherConfig struct {
	BatchSize  int
	Backoff    Backoff
	StaleAfter time.Duration // sending items older than this are recovered
	Interval   time.Duration // sleep between drains in long-running mode
	MaxRuntime time.Duration // budget for long-running mode; zero means unbounded
	BaseURL    string        // for unsubscribe links in rendered mail
}

// DrainStats aggregates one drain call.
type DrainStats struct {
	Processed int
	Sent      int
	Retried   int
	Failed    int
	Errors    int
}

type Dispatcher struct {
	queue  QueueStore
	mailer Transport
	cfg    DispatcherConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewDispatcher(queue QueueStore, mailer Transport, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 25
	}
	return &Dispatcher{
		queue:  queue,
		mailer: mailer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Drain claims up to batchSize due items and works through them one by one.
// One item's failure never aborts the batch. Cancellation is honored between
// items: the in-flight item always finishes and records its outcome.
func (d *Dispatcher) Drain(ctx context.Context, batchSize int) (*DrainStats, error) {
	if batchSize < 1 {
		batchSize = d.cfg.BatchSize
	}

	if d.cfg.StaleAfter > 0 {
		if _, err := d.queue.RequeueStale(ctx, d.now().Add(-d.cfg.StaleAfter)); err != nil {
			return nil, fmt.Errorf("requeue stale: %w", err)
		}
	}

	items, err := d.queue.ClaimPending(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}

	stats := &DrainStats{}

	for i, item := range items {
		if ctx.Err() != nil {
			// unclaimed remainder goes back to pending via the stale sweep;
			// items we already claimed but won't work are released now
			d.releaseUnworked(items[i:])
			break
		}

		stats.Processed++
		d.dispatchOne(ctx, item, stats)
	}

	return stats, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, item models.QueueItem, stats *DrainStats) {
	content, err := d.queue.NotificationContent(ctx, item)
	if errors.Is(err, errs.ErrNotFound) {
		// the listing or saved search vanished between match and send
		d.park(ctx, item.ID, "notification content no longer exists", stats)
		return
	}
	if err != nil {
		d.retryOrPark(ctx, item, err, stats)
		return
	}

	subject, body, err := RenderEmail(content, d.cfg.BaseURL)
	if err != nil {
		d.park(ctx, item.ID, fmt.Sprintf("render: %v", err), stats)
		return
	}

	if err := d.mailer.Send(ctx, content.OwnerEmail, subject, body); err != nil {
		d.retryOrPark(ctx, item, &errs.DeliveryError{Recipient: content.OwnerEmail, Err: err}, stats)
		return
	}

	if err := d.queue.MarkSent(ctx, item.ID); err != nil {
		d.logger.Error("sent but failed to record",
			zap.Int64("queue_item_id", item.ID),
			zap.Error(err),
		)
		stats.Errors++
		return
	}

	stats.Sent++
	d.logger.Info("alert notification sent",
		zap.Int64("queue_item_id", item.ID),
		zap.Int64("saved_search_id", item.SavedSearchID),
		zap.Int64("listing_id", item.ListingID),
	)
}

// retryOrPark applies the state machine after a failed attempt: back to
// pending with a backoff delay while budget remains, failed once exhausted.
func (d *Dispatcher) retryOrPark(ctx context.Context, item models.QueueItem, sendErr error, stats *DrainStats) {
	d.logger.Warn("notification attempt failed",
		zap.Int64("queue_item_id", item.ID),
		zap.Int("attempts", item.Attempts),
		zap.Error(sendErr),
	)

	if d.cfg.Backoff.Exhausted(item.Attempts) {
		d.park(ctx, item.ID, sendErr.Error(), stats)
		return
	}

	nextAttempt := d.now().Add(d.cfg.Backoff.Delay(item.Attempts))
	if err := d.queue.ReleaseForRetry(ctx, item.ID, nextAttempt, sendErr.Error()); err != nil {
		d.logger.Error("failed to release for retry",
			zap.Int64("queue_item_id", item.ID),
			zap.Error(err),
		)
		stats.Errors++
		return
	}
	stats.Retried++
}

func (d *Dispatcher) park(ctx context.Context, id int64, reason string, stats *DrainStats) {
	if err := d.queue.MarkFailed(ctx, id, reason); err != nil {
		d.logger.Error("failed to park notification",
			zap.Int64("queue_item_id", id),
			zap.Error(err),
		)
		stats.Errors++
		return
	}
	stats.Failed++
	d.logger.Warn("notification parked as failed",
		zap.Int64("queue_item_id", id),
		zap.String("reason", reason),
	)
}

// releaseUnworked puts claimed-but-unattempted items straight back to
// pending, returning the attempt the claim charged, so a graceful shutdown
// leaves no abandoned sending rows and burns no retry budget.
func (d *Dispatcher) releaseUnworked(items []models.QueueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, item := range items {
		if err := d.queue.ReleaseUnattempted(ctx, item.ID); err != nil {
			d.logger.Error("failed to release unworked item",
				zap.Int64("queue_item_id", item.ID),
				zap.Error(err),
			)
		}
	}
}

// Run is the long-running mode: drain, sleep, repeat, until the context is
// cancelled or the max-runtime budget is spent. The in-flight item always
// completes before exit.
func (d *Dispatcher) Run(ctx context.Context) error {
	var deadline time.Time
	if d.cfg.MaxRuntime > 0 {
		deadline = d.now().Add(d.cfg.MaxRuntime)
	}

	d.logger.Info("dispatcher started",
		zap.Duration("interval", d.cfg.Interval),
		zap.Duration("max_runtime", d.cfg.MaxRuntime),
	)

	for {
		stats, err := d.Drain(ctx, d.cfg.BatchSize)
		if err != nil {
			// systemic (store unreachable); log and let the next tick retry
			d.logger.Error("drain failed", zap.Error(err))
		} else if stats.Processed > 0 {
			d.logger.Info("drain finished",
				zap.Int("processed", stats.Processed),
				zap.Int("sent", stats.Sent),
				zap.Int("retried", stats.Retried),
				zap.Int("failed", stats.Failed),
				zap.Int("errors", stats.Errors),
			)
		}

		if !deadline.IsZero() && !d.now().Before(deadline) {
			d.logger.Info("dispatcher runtime budget spent")
			return nil
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return ctx.Err()
		case <-time.After(d.cfg.Interval):
		}
	}
}
