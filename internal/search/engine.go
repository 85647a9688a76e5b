package search

import (
	"context"
	"time"

	"marketplace-search/internal/cache"
	"marketplace-search/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultSuggestLimit = 10
	maxSuggestLimit     = 20
)

// ListingStore is the read side of the listing data the engine queries.
type ListingStore interface {
	SearchListings(ctx context.Context, d *models.QueryDescriptor) ([]models.Listing, error)
	CountListings(ctx context.Context, d *models.QueryDescriptor) (int64, error)
	CategoryFacets(ctx context.Context, d *models.QueryDescriptor) ([]models.CategoryFacet, error)
	SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error)
}

// ResultCache is the cache surface the engine needs. Every error from it is
// treated as a miss: a cache outage slows searches down, it never fails them.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	IncrementScore(ctx context.Context, key, member string, ttl time.Duration) error
	TopScores(ctx context.Context, key string, limit int) ([]redis.Z, error)
}

// Engine executes relevance-ranked, geo-filtered, paginated searches with a
// read-through result cache.
type Engine struct {
	store  ListingStore
	cache  ResultCache
	logger *zap.Logger
}

func NewEngine(store ListingStore, resultCache ResultCache, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		cache:  resultCache,
		logger: logger,
	}
}

// Search runs a normalized descriptor and returns one result page. Zero
// matches is a valid empty page. Store errors surface as StoreUnavailable;
// the caller decides whether to retry.
func (e *Engine) Search(ctx context.Context, d *models.QueryDescriptor) (*models.ResultPage, error) {
	start := time.Now()
	key := cache.SearchResultsKey(d.Hash())

	var page models.ResultPage
	if err := e.cache.Get(ctx, key, &page); err == nil {
		e.logger.Debug("search cache hit", zap.String("key", key))
		e.recordQuery(ctx, d)
		return &page, nil
	}

	listings, err := e.store.SearchListings(ctx, d)
	if err != nil {
		return nil, err
	}

	total, err := e.store.CountListings(ctx, d)
	if err != nil {
		return nil, err
	}

	items := make([]models.SearchItem, 0, len(listings))
	for _, l := range listings {
		item := models.SearchItem{Listing: l}
		if d.HasGeo() && l.Latitude != nil && l.Longitude != nil {
			dist := Haversine(*d.Latitude, *d.Longitude, *l.Latitude, *l.Longitude)
			item.DistanceKM = &dist
		}
		items = append(items, item)
	}

	page = models.ResultPage{
		Items:   items,
		Total:   total,
		Page:    d.Page,
		PerPage: d.PerPage,
		TookMS:  time.Since(start).Milliseconds(),
	}

	// best effort: a failed cache write must not fail the search
	if err := e.cache.Set(ctx, key, &page, cache.SearchResultsTTL); err != nil {
		e.logger.Debug("search cache write skipped", zap.Error(err))
	}

	e.recordQuery(ctx, d)

	return &page, nil
}

// Facets returns per-category match counts for the descriptor's filters.
func (e *Engine) Facets(ctx context.Context, d *models.QueryDescriptor) ([]models.CategoryFacet, error) {
	// facets do not depend on paging or ordering, and the store ignores
	// the category filter to show the full breakdown, so none of those
	// belong in the cache key
	flat := *d
	flat.Page = 1
	flat.PerPage = models.DefaultPageSize
	flat.Sort = models.SortRelevance
	flat.CategoryID = 0
	key := cache.FacetsKey(flat.Hash())

	var facets []models.CategoryFacet
	if err := e.cache.Get(ctx, key, &facets); err == nil {
		return facets, nil
	}

	facets, err := e.store.CategoryFacets(ctx, d)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, facets, cache.FacetsTTL); err != nil {
		e.logger.Debug("facet cache write skipped", zap.Error(err))
	}

	return facets, nil
}

// Suggest returns autocomplete candidates for a title prefix.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = models.NormalizeText(prefix)
	if prefix == "" {
		return []string{}, nil
	}
	if limit < 1 {
		limit = defaultSuggestLimit
	}
	if limit > maxSuggestLimit {
		limit = maxSuggestLimit
	}

	key := cache.SuggestionsKey(prefix, limit)

	var suggestions []string
	if err := e.cache.Get(ctx, key, &suggestions); err == nil {
		return suggestions, nil
	}

	suggestions, err := e.store.SuggestTitles(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	if err := e.cache.Set(ctx, key, suggestions, cache.SuggestionsTTL); err != nil {
		e.logger.Debug("suggestion cache write skipped", zap.Error(err))
	}

	return suggestions, nil
}

// PopularQueries returns the most-executed search terms of the last day.
func (e *Engine) PopularQueries(ctx context.Context, limit int) ([]models.PopularQuery, error) {
	if limit < 1 {
		limit = defaultSuggestLimit
	}

	scores, err := e.cache.TopScores(ctx, cache.PopularQueriesKey(), limit)
	if err != nil {
		// degraded cache means no aggregates, not a failed request
		return []models.PopularQuery{}, nil
	}

	popular := make([]models.PopularQuery, 0, len(scores))
	for _, z := range scores {
		term, ok := z.Member.(string)
		if !ok {
			continue
		}
		popular = append(popular, models.PopularQuery{Query: term, Count: int64(z.Score)})
	}

	return popular, nil
}

func (e *Engine) recordQuery(ctx context.Context, d *models.QueryDescriptor) {
	if !d.HasText() {
		return
	}
	if err := e.cache.IncrementScore(ctx, cache.PopularQueriesKey(), d.Text, cache.PopularQueriesTTL); err != nil {
		e.logger.Debug("popular query tracking skipped", zap.Error(err))
	}
}
