// Package search holds the query normalizer and the cached search engine.
package search

import (
	"net/url"
	"strconv"
	"time"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"
)

const defaultRadiusKM = 25.0

// ParseSearchRequest turns raw request parameters into a normalized, valid
// QueryDescriptor, or fails with a ValidationError naming the bad field.
// Validation happens here, at the boundary: a descriptor that leaves this
// function never fails validation further down.
func ParseSearchRequest(values url.Values) (*models.QueryDescriptor, error) {
	d := &models.QueryDescriptor{
		Text:     values.Get("q"),
		Location: values.Get("location"),
		Sort:     values.Get("sort"),
	}

	var err error

	if d.Page, err = intParam(values, "page", 1); err != nil {
		return nil, err
	}
	if d.PerPage, err = intParam(values, "per_page", models.DefaultPageSize); err != nil {
		return nil, err
	}
	// checked before Normalize clamps them, so an explicit page=0 is
	// rejected instead of silently served as page 1
	if d.Page < 1 {
		return nil, errs.Validation("page", "must be at least 1")
	}
	if d.PerPage < 1 {
		return nil, errs.Validation("per_page", "must be at least 1")
	}

	if cat := values.Get("category_id"); cat != "" {
		id, err := strconv.ParseInt(cat, 10, 64)
		if err != nil {
			return nil, errs.Validation("category_id", "must be an integer")
		}
		d.CategoryID = id
	}

	if d.MinPrice, err = floatParam(values, "min_price"); err != nil {
		return nil, err
	}
	if d.MaxPrice, err = floatParam(values, "max_price"); err != nil {
		return nil, err
	}

	conditions := values["condition[]"]
	if len(conditions) == 0 {
		conditions = values["condition"]
	}
	d.Conditions = conditions

	if d.Latitude, err = floatParam(values, "lat"); err != nil {
		return nil, err
	}
	if d.Longitude, err = floatParam(values, "lng"); err != nil {
		return nil, err
	}
	if d.RadiusKM, err = floatParam(values, "radius"); err != nil {
		return nil, err
	}

	if d.DateFrom, err = timeParam(values, "date_from"); err != nil {
		return nil, err
	}
	if d.DateTo, err = timeParam(values, "date_to"); err != nil {
		return nil, err
	}

	if v := values.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errs.Validation("featured", "must be a boolean")
		}
		d.Featured = &featured
	}

	d.Normalize()
	if err := ValidateDescriptor(d); err != nil {
		return nil, err
	}
	return d, nil
}

// ValidateDescriptor checks a normalized descriptor's semantic bounds and
// fills the default radius when coordinates arrive without one. Saved-search
// filters decoded from JSON go through the same checks as live requests.
func ValidateDescriptor(d *models.QueryDescriptor) error {
	if d.Page < 1 {
		return errs.Validation("page", "must be at least 1")
	}
	if d.PerPage < 1 || d.PerPage > models.MaxPageSize {
		return errs.Validation("per_page", "must be between 1 and %d", models.MaxPageSize)
	}

	if !models.IsValidSortMode(d.Sort) {
		return errs.Validation("sort", "unknown sort mode %q", d.Sort)
	}

	if d.CategoryID < 0 {
		return errs.Validation("category_id", "must be a positive integer")
	}

	if d.MinPrice != nil && *d.MinPrice < 0 {
		return errs.Validation("min_price", "must not be negative")
	}
	if d.MaxPrice != nil && *d.MaxPrice < 0 {
		return errs.Validation("max_price", "must not be negative")
	}
	if d.MinPrice != nil && d.MaxPrice != nil && *d.MinPrice > *d.MaxPrice {
		return errs.Validation("min_price", "must not exceed max_price")
	}

	for _, c := range d.Conditions {
		if !models.IsValidCondition(c) {
			return errs.Validation("condition", "unknown condition %q", c)
		}
	}

	if (d.Latitude == nil) != (d.Longitude == nil) {
		return errs.Validation("lat", "lat and lng must be given together")
	}
	if d.Latitude != nil {
		if *d.Latitude < -90 || *d.Latitude > 90 {
			return errs.Validation("lat", "must be between -90 and 90")
		}
		if *d.Longitude < -180 || *d.Longitude > 180 {
			return errs.Validation("lng", "must be between -180 and 180")
		}
		if d.RadiusKM == nil {
			radius := defaultRadiusKM
			d.RadiusKM = &radius
		}
	}
	if d.RadiusKM != nil {
		if d.Latitude == nil {
			return errs.Validation("radius", "requires lat and lng")
		}
		if *d.RadiusKM < models.MinRadiusKM || *d.RadiusKM > models.MaxRadiusKM {
			return errs.Validation("radius", "must be between %d and %d km", models.MinRadiusKM, models.MaxRadiusKM)
		}
	}

	if d.DateFrom != nil && d.DateTo != nil && d.DateFrom.After(*d.DateTo) {
		return errs.Validation("date_from", "must not be after date_to")
	}

	return nil
}

func intParam(values url.Values, name string, def int) (int, error) {
	v := values.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Validation(name, "must be an integer")
	}
	return n, nil
}

func floatParam(values url.Values, name string) (*float64, error) {
	v := values.Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errs.Validation(name, "must be a number")
	}
	return &f, nil
}

func timeParam(values url.Values, name string) (*time.Time, error) {
	v := values.Get(name)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, errs.Validation(name, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}
