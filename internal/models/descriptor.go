package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Sort modes accepted by the search engine.
const (
	SortRelevance = "relevance"
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortDistance  = "distance"
	SortPopular   = "popular"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
	MaxQueryLength  = 200 // runes; bounds cache-key cardinality

	MinRadiusKM = 1
	MaxRadiusKM = 100
)

var validSortModes = map[string]bool{
	SortRelevance: true,
	SortNewest:    true,
	SortPriceAsc:  true,
	SortPriceDesc: true,
	SortDistance:  true,
	SortPopular:   true,
}

func IsValidSortMode(s string) bool {
	return validSortModes[s]
}

// QueryDescriptor is the canonical, hashable representation of a search
// request. Two descriptors are equal iff all fields are equal after
// Normalize; the hash of a normalized descriptor is the cache key.
type QueryDescriptor struct {
	Text       string     `json:"q,omitempty"`
	CategoryID int64      `json:"category_id,omitempty"`
	MinPrice   *float64   `json:"min_price,omitempty"`
	MaxPrice   *float64   `json:"max_price,omitempty"`
	Conditions []string   `json:"conditions,omitempty"`
	Location   string     `json:"location,omitempty"`
	Latitude   *float64   `json:"lat,omitempty"`
	Longitude  *float64   `json:"lng,omitempty"`
	RadiusKM   *float64   `json:"radius,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Featured   *bool      `json:"featured,omitempty"`
	Sort       string     `json:"sort,omitempty"`
	Page       int        `json:"page,omitempty"`
	PerPage    int        `json:"per_page,omitempty"`
}

// Normalize canonicalizes free-form fields in place: text is trimmed,
// whitespace-collapsed, lower-cased and capped at MaxQueryLength runes;
// conditions are deduplicated and sorted; paging and sort get defaults.
func (d *QueryDescriptor) Normalize() {
	d.Text = NormalizeText(d.Text)
	d.Location = NormalizeText(d.Location)

	if len(d.Conditions) > 0 {
		seen := make(map[string]bool, len(d.Conditions))
		out := d.Conditions[:0]
		for _, c := range d.Conditions {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
		sort.Strings(out)
		d.Conditions = out
	}

	if d.Sort == "" {
		d.Sort = SortRelevance
	}
	if d.Page < 1 {
		d.Page = 1
	}
	if d.PerPage < 1 {
		d.PerPage = DefaultPageSize
	}
}

// NormalizeText trims, collapses internal whitespace, lower-cases and caps
// free text at MaxQueryLength runes.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	runes := []rune(s)
	if len(runes) > MaxQueryLength {
		s = strings.TrimSpace(string(runes[:MaxQueryLength]))
	}
	return s
}

// Normalized returns a normalized copy, leaving the receiver untouched.
func (d QueryDescriptor) Normalized() QueryDescriptor {
	d.Conditions = append([]string(nil), d.Conditions...)
	d.Normalize()
	return d
}

// Hash returns a stable hex digest of the normalized descriptor. Field order
// is fixed here, so semantically identical requests hash identically
// regardless of the order request parameters arrived in.
func (d QueryDescriptor) Hash() string {
	n := d.Normalized()

	var b strings.Builder
	field := func(key, value string) {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte(';')
	}

	field("q", n.Text)
	field("cat", strconv.FormatInt(n.CategoryID, 10))
	field("min", floatField(n.MinPrice))
	field("max", floatField(n.MaxPrice))
	field("cond", strings.Join(n.Conditions, ","))
	field("loc", n.Location)
	field("lat", floatField(n.Latitude))
	field("lng", floatField(n.Longitude))
	field("rad", floatField(n.RadiusKM))
	field("from", timeField(n.DateFrom))
	field("to", timeField(n.DateTo))
	field("feat", boolField(n.Featured))
	field("sort", n.Sort)
	field("page", strconv.Itoa(n.Page))
	field("size", strconv.Itoa(n.PerPage))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// HasText reports whether the descriptor carries a free-text term.
func (d *QueryDescriptor) HasText() bool {
	return d.Text != ""
}

// HasGeo reports whether the descriptor carries a complete geo filter.
func (d *QueryDescriptor) HasGeo() bool {
	return d.Latitude != nil && d.Longitude != nil && d.RadiusKM != nil
}

// Offset is the row offset of the requested page.
func (d *QueryDescriptor) Offset() int {
	return (d.Page - 1) * d.PerPage
}

func floatField(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func timeField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UTC().Unix(), 10)
}

func boolField(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
