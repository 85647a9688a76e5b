package models

import "time"

// Notification queue item states. pending -> sending -> sent is the happy
// path; a failed send returns the item to pending with a backoff delay until
// the attempt budget is exhausted, then it parks in failed for operator
// inspection.
const (
	QueueStatusPending = "pending"
	QueueStatusSending = "sending"
	QueueStatusSent    = "sent"
	QueueStatusFailed  = "failed"
)

// QueueItem is one pending alert notification. At most one non-failed item
// exists per (saved_search_id, listing_id) pair.
type QueueItem struct {
	ID            int64      `db:"id" json:"id"`
	SavedSearchID int64      `db:"saved_search_id" json:"saved_search_id"`
	ListingID     int64      `db:"listing_id" json:"listing_id"`
	Status        string     `db:"status" json:"status"`
	Attempts      int        `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time  `db:"next_attempt_at" json:"next_attempt_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	LastError     *string    `db:"last_error" json:"last_error,omitempty"`
	SentAt        *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}

// NotificationContent is everything the dispatcher needs to render and send
// one alert: the queue item joined with its saved search, listing and owner.
type NotificationContent struct {
	Item       QueueItem
	SearchID   int64
	SearchName string
	OwnerEmail string
	Listing    Listing
}

// QueueStats is the queue depth grouped by status plus the failure total,
// as reported by the operator tooling.
type QueueStats struct {
	Pending int64 `db:"pending" json:"pending"`
	Sending int64 `db:"sending" json:"sending"`
	Sent    int64 `db:"sent" json:"sent"`
	Failed  int64 `db:"failed" json:"failed"`
}
