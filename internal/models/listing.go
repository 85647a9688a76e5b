package models

import "time"

// Listing is the read-only view of a marketplace listing used by search and
// alert matching. Listing writes happen elsewhere in the application.
type Listing struct {
	ID             int64     `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Description    string    `db:"description" json:"description"`
	Price          float64   `db:"price" json:"price"`
	Currency       string    `db:"currency" json:"currency"`
	Condition      string    `db:"condition" json:"condition"`
	Status         string    `db:"status" json:"status"`
	CategoryID     int64     `db:"category_id" json:"category_id"`
	Location       string    `db:"location" json:"location"`
	Latitude       *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64  `db:"longitude" json:"longitude,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	IsFeatured     bool      `db:"is_featured" json:"is_featured"`
	FavoritesCount int       `db:"favorites_count" json:"favorites_count"`
}

const (
	ListingStatusDraft     = "draft"
	ListingStatusActive    = "active"
	ListingStatusSold      = "sold"
	ListingStatusExpired   = "expired"
	ListingStatusSuspended = "suspended"
)

const (
	ConditionNew      = "new"
	ConditionLikeNew  = "like_new"
	ConditionGood     = "good"
	ConditionFair     = "fair"
	ConditionForParts = "for_parts"
)

var validConditions = map[string]bool{
	ConditionNew:      true,
	ConditionLikeNew:  true,
	ConditionGood:     true,
	ConditionFair:     true,
	ConditionForParts: true,
}

func IsValidCondition(c string) bool {
	return validConditions[c]
}
