package cache

import (
	"fmt"
	"time"
)

// TTL classes. Result pages go stale quickly; aggregates live longer.
// Listing writes never invalidate actively; expiry bounds the staleness.
const (
	SearchResultsTTL  = 5 * time.Minute
	FacetsTTL         = 1 * time.Hour
	SuggestionsTTL    = 10 * time.Minute
	PopularQueriesTTL = 24 * time.Hour
)

func SearchResultsKey(descriptorHash string) string {
	return fmt.Sprintf("search:results:%s", descriptorHash)
}

func FacetsKey(descriptorHash string) string {
	return fmt.Sprintf("search:facets:%s", descriptorHash)
}

func SuggestionsKey(prefix string, limit int) string {
	return fmt.Sprintf("search:suggest:%d:%s", limit, prefix)
}

func PopularQueriesKey() string {
	return "search:popular"
}
