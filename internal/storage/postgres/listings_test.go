package postgres

import (
	"strings"
	"testing"

	"marketplace-search/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalized(d models.QueryDescriptor) *models.QueryDescriptor {
	d.Normalize()
	return &d
}

func TestSearchConditions_ActiveOnlyByDefault(t *testing.T) {
	where, args := searchConditions(normalized(models.QueryDescriptor{}))

	assert.Equal(t, "status = ?", where)
	assert.Equal(t, []interface{}{models.ListingStatusActive}, args)
}

func TestSearchConditions_PriceBoundsInclusive(t *testing.T) {
	min, max := 500.0, 600.0
	where, args := searchConditions(normalized(models.QueryDescriptor{MinPrice: &min, MaxPrice: &max}))

	assert.Contains(t, where, "price >= ?")
	assert.Contains(t, where, "price <= ?")
	assert.NotContains(t, where, "price > ?")
	assert.NotContains(t, where, "price < ?")
	assert.Equal(t, []interface{}{models.ListingStatusActive, 500.0, 600.0}, args)
}

func TestSearchConditions_AllFiltersANDed(t *testing.T) {
	featured := true
	where, args := searchConditions(normalized(models.QueryDescriptor{
		Text:       "iphone",
		CategoryID: 7,
		Conditions: []string{"good", "new"},
		Featured:   &featured,
	}))

	assert.Contains(t, where, "search_vector @@ plainto_tsquery('english', ?)")
	assert.Contains(t, where, "category_id = ?")
	assert.Contains(t, where, "condition IN ?")
	assert.Contains(t, where, "is_featured = ?")
	assert.Equal(t, strings.Count(where, " AND "), 4)
	assert.Len(t, args, 5)
}

func TestSearchConditions_GeoFilter(t *testing.T) {
	lat, lng, radius := 52.52, 13.405, 25.0
	where, args := searchConditions(normalized(models.QueryDescriptor{
		Latitude: &lat, Longitude: &lng, RadiusKM: &radius,
	}))

	assert.Contains(t, where, "asin(sqrt(")
	assert.Contains(t, where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	require.Len(t, args, 5)
	assert.Equal(t, []interface{}{models.ListingStatusActive, lat, lat, lng, radius}, args)
}

func TestSearchConditions_LocationTextIgnoredWithCoordinates(t *testing.T) {
	lat, lng, radius := 52.52, 13.405, 25.0

	where, _ := searchConditions(normalized(models.QueryDescriptor{
		Location: "Berlin", Latitude: &lat, Longitude: &lng, RadiusKM: &radius,
	}))
	assert.NotContains(t, where, "lower(location)")

	where, args := searchConditions(normalized(models.QueryDescriptor{Location: "Berlin"}))
	assert.Contains(t, where, "lower(location) LIKE ?")
	assert.Contains(t, args, "%berlin%")
}

func TestSortClause_EveryModeBreaksTiesByIDDescending(t *testing.T) {
	lat, lng, radius := 52.52, 13.405, 25.0

	cases := []models.QueryDescriptor{
		{Sort: models.SortRelevance, Text: "iphone"},
		{Sort: models.SortRelevance},
		{Sort: models.SortNewest},
		{Sort: models.SortPriceAsc},
		{Sort: models.SortPriceDesc},
		{Sort: models.SortPopular},
		{Sort: models.SortDistance, Latitude: &lat, Longitude: &lng, RadiusKM: &radius},
		{Sort: models.SortDistance},
	}

	for _, d := range cases {
		order, _ := sortClause(normalized(d))
		assert.True(t, strings.HasSuffix(order, "id DESC"), "sort %q: %q", d.Sort, order)
	}
}

func TestSortClause_NamedFields(t *testing.T) {
	order, args := sortClause(normalized(models.QueryDescriptor{Sort: models.SortNewest}))
	assert.Equal(t, "created_at DESC, id DESC", order)
	assert.Nil(t, args)

	order, _ = sortClause(normalized(models.QueryDescriptor{Sort: models.SortPriceAsc}))
	assert.Equal(t, "price ASC, id DESC", order)

	order, _ = sortClause(normalized(models.QueryDescriptor{Sort: models.SortPriceDesc}))
	assert.Equal(t, "price DESC, id DESC", order)

	order, _ = sortClause(normalized(models.QueryDescriptor{Sort: models.SortPopular}))
	assert.Equal(t, "favorites_count DESC, id DESC", order)
}

func TestSortClause_DistanceAscending(t *testing.T) {
	lat, lng, radius := 52.52, 13.405, 25.0
	order, args := sortClause(normalized(models.QueryDescriptor{
		Sort: models.SortDistance, Latitude: &lat, Longitude: &lng, RadiusKM: &radius,
	}))

	assert.Contains(t, order, "ASC, id DESC")
	assert.Contains(t, order, "asin(sqrt(")
	assert.Equal(t, []interface{}{lat, lat, lng}, args)
}

func TestSortClause_RelevanceWithTextCarriesBoosts(t *testing.T) {
	order, args := sortClause(normalized(models.QueryDescriptor{Sort: models.SortRelevance, Text: "iphone"}))

	assert.Contains(t, order, "ts_rank")
	assert.Contains(t, order, "is_featured")
	assert.Contains(t, order, "favorites_count")
	assert.Contains(t, order, "created_at")
	assert.Equal(t, []interface{}{"iphone"}, args)
}

func TestSortClause_RelevanceWithoutTextFallsBackToNewest(t *testing.T) {
	order, args := sortClause(normalized(models.QueryDescriptor{Sort: models.SortRelevance}))

	assert.Equal(t, "created_at DESC, id DESC", order)
	assert.Nil(t, args)
}
