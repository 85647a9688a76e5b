package models

// SearchItem is a listing in a result page, with the distance from the query
// point when the search carried a geo filter.
type SearchItem struct {
	Listing
	DistanceKM *float64 `json:"distance_km,omitempty"`
}

// ResultPage is one page of search results. Total counts all matching rows
// before pagination. A search with zero matches yields an empty page, never
// an error.
type ResultPage struct {
	Items   []SearchItem `json:"items"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	TookMS  int64        `json:"took_ms"`
}

// TotalPages is the page count for the full match set.
func (p *ResultPage) TotalPages() int64 {
	if p.PerPage <= 0 {
		return 0
	}
	return (p.Total + int64(p.PerPage) - 1) / int64(p.PerPage)
}

// HasNextPage reports whether pages beyond the current one exist.
func (p *ResultPage) HasNextPage() bool {
	return int64(p.Page) < p.TotalPages()
}

// CategoryFacet is a per-category match count used to populate filter UI.
type CategoryFacet struct {
	CategoryID int64 `db:"category_id" json:"category_id"`
	Count      int64 `db:"count" json:"count"`
}

// PopularQuery is an aggregated search term with its execution count.
type PopularQuery struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}
