package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SavedSearch is a user-defined search descriptor with notification
// preferences. LastNotifiedAt is the watermark: listings created after it
// have not been evaluated for this search yet. The watermark only ever
// moves forward; enforcement lives in the registry's AdvanceWatermark.
type SavedSearch struct {
	ID                  int64      `db:"id" json:"id"`
	UserID              int64      `db:"user_id" json:"user_id"`
	Name                string     `db:"name" json:"name"`
	Filters             RawJSON    `db:"filters" json:"filters"`
	NotificationEnabled bool       `db:"notification_enabled" json:"notification_enabled"`
	LastNotifiedAt      *time.Time `db:"last_notified_at" json:"last_notified_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// Descriptor decodes the serialized query descriptor.
func (s *SavedSearch) Descriptor() (*QueryDescriptor, error) {
	var d QueryDescriptor
	if err := json.Unmarshal(s.Filters, &d); err != nil {
		return nil, err
	}
	d.Normalize()
	return &d, nil
}

// SavedSearchActivity is a per-saved-search match count, reported by the
// operator stats surface.
type SavedSearchActivity struct {
	SavedSearchID int64  `db:"saved_search_id" json:"saved_search_id"`
	Name          string `db:"name" json:"name"`
	Matches       int64  `db:"matches" json:"matches"`
}

type RawJSON json.RawMessage

func (r RawJSON) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.RawMessage(r).MarshalJSON()
}

func (r *RawJSON) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	*r = RawJSON(bytes)
	return nil
}

func (r RawJSON) MarshalJSON() ([]byte, error) {
	return json.RawMessage(r).MarshalJSON()
}

func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = RawJSON(data)
	return nil
}
