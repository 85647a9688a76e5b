package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"

	"go.uber.org/zap"
)

// Ranking weights. Tunable; tests pin relative ordering, not exact scores.
const (
	featuredBoost   = 1.5    // multiplier on the text rank of featured listings
	recencyWeight   = 0.5    // score added to a listing created this instant
	recencyHalfLife = 604800 // seconds until the recency boost halves (7 days)
	favoritesWeight = 0.25   // asymptotic score of a heavily-favorited listing
	favoritesPivot  = 50     // favorites count at which half of favoritesWeight is reached
)

const listingColumns = `id, title, description, price, currency, condition, status,
	category_id, location, latitude, longitude, created_at, is_featured, favorites_count`

// haversineExpr is the great-circle distance in km between the query point
// and the listing. Takes three args: lat, lat, lng.
const haversineExpr = `2 * 6371.0 * asin(sqrt(
	power(sin(radians(latitude - ?) / 2), 2) +
	cos(radians(?)) * cos(radians(latitude)) *
	power(sin(radians(longitude - ?) / 2), 2)))`

// relevanceExpr mixes the full-text rank with the featured, recency and
// favorites boosts. Takes one arg: the query text.
var relevanceExpr = fmt.Sprintf(`(ts_rank(search_vector, plainto_tsquery('english', ?))
	* (CASE WHEN is_featured THEN %g ELSE 1.0 END))
	+ %g * exp(-ln(2) * extract(epoch from (now() - created_at)) / %d.0)
	+ %g * (favorites_count::float8 / (favorites_count + %d))`,
	featuredBoost, recencyWeight, recencyHalfLife, favoritesWeight, favoritesPivot)

// searchConditions builds the shared filter predicate for a descriptor:
// active status ANDed with every filter the descriptor carries. The same
// predicate backs search, count, facet and alert-match queries.
func searchConditions(d *models.QueryDescriptor) (string, []interface{}) {
	conds := []string{"status = ?"}
	args := []interface{}{models.ListingStatusActive}

	if d.HasText() {
		conds = append(conds, "search_vector @@ plainto_tsquery('english', ?)")
		args = append(args, d.Text)
	}

	if d.CategoryID > 0 {
		conds = append(conds, "category_id = ?")
		args = append(args, d.CategoryID)
	}

	// price bounds are inclusive
	if d.MinPrice != nil {
		conds = append(conds, "price >= ?")
		args = append(args, *d.MinPrice)
	}
	if d.MaxPrice != nil {
		conds = append(conds, "price <= ?")
		args = append(args, *d.MaxPrice)
	}

	if len(d.Conditions) > 0 {
		conds = append(conds, "condition IN ?")
		args = append(args, d.Conditions)
	}

	if d.DateFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *d.DateFrom)
	}
	if d.DateTo != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *d.DateTo)
	}

	if d.Featured != nil {
		conds = append(conds, "is_featured = ?")
		args = append(args, *d.Featured)
	}

	// text location matches as a substring; coordinates override it below
	if d.Location != "" && !d.HasGeo() {
		conds = append(conds, "lower(location) LIKE ?")
		args = append(args, "%"+d.Location+"%")
	}

	if d.HasGeo() {
		conds = append(conds, "latitude IS NOT NULL AND longitude IS NOT NULL AND "+haversineExpr+" <= ?")
		args = append(args, *d.Latitude, *d.Latitude, *d.Longitude, *d.RadiusKM)
	}

	return strings.Join(conds, " AND "), args
}

// sortClause builds the ORDER BY body for a descriptor. Every mode breaks
// ties by id descending so pagination stays stable across pages.
func sortClause(d *models.QueryDescriptor) (string, []interface{}) {
	switch d.Sort {
	case models.SortPriceAsc:
		return "price ASC, id DESC", nil
	case models.SortPriceDesc:
		return "price DESC, id DESC", nil
	case models.SortPopular:
		return "favorites_count DESC, id DESC", nil
	case models.SortDistance:
		if d.HasGeo() {
			return "(" + haversineExpr + ") ASC, id DESC", []interface{}{*d.Latitude, *d.Latitude, *d.Longitude}
		}
		return "created_at DESC, id DESC", nil
	case models.SortRelevance:
		if d.HasText() {
			return "(" + relevanceExpr + ") DESC, id DESC", []interface{}{d.Text}
		}
		return "created_at DESC, id DESC", nil
	default: // models.SortNewest
		return "created_at DESC, id DESC", nil
	}
}

// SearchListings runs the ranked, filtered, paginated query for a
// normalized descriptor. Zero matching rows returns an empty slice.
func (s *Store) SearchListings(ctx context.Context, d *models.QueryDescriptor) ([]models.Listing, error) {
	where, whereArgs := searchConditions(d)
	order, orderArgs := sortClause(d)

	query := fmt.Sprintf(
		"SELECT %s FROM listings WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		listingColumns, where, order,
	)

	args := append(whereArgs, orderArgs...)
	args = append(args, d.PerPage, d.Offset())

	var listings []models.Listing
	if _, err := s.sess.SelectBySql(query, args...).LoadContext(ctx, &listings); err != nil {
		s.logger.Error("failed to search listings",
			zap.String("query_hash", d.Hash()),
			zap.Error(err),
		)
		return nil, errs.Unavailable("search listings", err)
	}

	return listings, nil
}

// CountListings counts all rows matching the descriptor's predicate,
// ignoring pagination.
func (s *Store) CountListings(ctx context.Context, d *models.QueryDescriptor) (int64, error) {
	where, args := searchConditions(d)

	var count int64
	err := s.sess.
		SelectBySql(fmt.Sprintf("SELECT COUNT(*) FROM listings WHERE %s", where), args...).
		LoadOneContext(ctx, &count)
	if err != nil {
		s.logger.Error("failed to count listings", zap.Error(err))
		return 0, errs.Unavailable("count listings", err)
	}

	return count, nil
}

// MatchListingsSince returns active listings created strictly after since
// that match the descriptor's filter predicate, oldest first. Used by the
// alert matcher; bypasses any caching so newly created listings are seen.
func (s *Store) MatchListingsSince(ctx context.Context, d *models.QueryDescriptor, since *time.Time, limit int) ([]models.Listing, error) {
	where, args := searchConditions(d)

	if since != nil {
		where += " AND created_at > ?"
		args = append(args, *since)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM listings WHERE %s ORDER BY created_at ASC, id ASC LIMIT ?",
		listingColumns, where,
	)
	args = append(args, limit)

	var listings []models.Listing
	if _, err := s.sess.SelectBySql(query, args...).LoadContext(ctx, &listings); err != nil {
		s.logger.Error("failed to match listings", zap.Error(err))
		return nil, errs.Unavailable("match listings", err)
	}

	return listings, nil
}

// CategoryFacets counts matches per category for the descriptor's filters,
// ignoring its own category filter so the full category breakdown shows.
func (s *Store) CategoryFacets(ctx context.Context, d *models.QueryDescriptor) ([]models.CategoryFacet, error) {
	faceted := *d
	faceted.CategoryID = 0
	where, args := searchConditions(&faceted)

	query := fmt.Sprintf(
		"SELECT category_id, COUNT(*) AS count FROM listings WHERE %s GROUP BY category_id ORDER BY count DESC",
		where,
	)

	var facets []models.CategoryFacet
	if _, err := s.sess.SelectBySql(query, args...).LoadContext(ctx, &facets); err != nil {
		s.logger.Error("failed to load category facets", zap.Error(err))
		return nil, errs.Unavailable("category facets", err)
	}

	return facets, nil
}

// SuggestTitles returns distinct active listing titles starting with prefix.
func (s *Store) SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error) {
	var titles []string
	_, err := s.sess.
		SelectBySql(
			`SELECT DISTINCT lower(title) FROM listings
			 WHERE status = ? AND lower(title) LIKE ? || '%'
			 ORDER BY 1 LIMIT ?`,
			models.ListingStatusActive, prefix, limit,
		).
		LoadContext(ctx, &titles)
	if err != nil {
		s.logger.Error("failed to load title suggestions",
			zap.String("prefix", prefix),
			zap.Error(err),
		)
		return nil, errs.Unavailable("suggest titles", err)
	}

	return titles, nil
}
