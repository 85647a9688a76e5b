package search

import (
	"net/url"
	"testing"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchRequest_Defaults(t *testing.T) {
	d, err := ParseSearchRequest(url.Values{})
	require.NoError(t, err)

	assert.Equal(t, 1, d.Page)
	assert.Equal(t, models.DefaultPageSize, d.PerPage)
	assert.Equal(t, models.SortRelevance, d.Sort)
	assert.Empty(t, d.Text)
}

func TestParseSearchRequest_ValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		params url.Values
		field  string
	}{
		{"page size over limit", url.Values{"per_page": {"51"}}, "per_page"},
		{"page zero", url.Values{"page": {"0"}}, "page"},
		{"negative page", url.Values{"page": {"-2"}}, "page"},
		{"page size zero", url.Values{"per_page": {"0"}}, "per_page"},
		{"page not a number", url.Values{"page": {"abc"}}, "page"},
		{"min over max price", url.Values{"min_price": {"900"}, "max_price": {"800"}}, "min_price"},
		{"negative price", url.Values{"min_price": {"-1"}}, "min_price"},
		{"unknown sort", url.Values{"sort": {"cheapest"}}, "sort"},
		{"unknown condition", url.Values{"condition[]": {"shabby"}}, "condition"},
		{"radius too small", url.Values{"lat": {"52.5"}, "lng": {"13.4"}, "radius": {"0.5"}}, "radius"},
		{"radius too large", url.Values{"lat": {"52.5"}, "lng": {"13.4"}, "radius": {"150"}}, "radius"},
		{"radius without coordinates", url.Values{"radius": {"10"}}, "radius"},
		{"lat without lng", url.Values{"lat": {"52.5"}}, "lat"},
		{"lat out of range", url.Values{"lat": {"91"}, "lng": {"13.4"}}, "lat"},
		{"lng out of range", url.Values{"lat": {"52.5"}, "lng": {"181"}}, "lng"},
		{"malformed date", url.Values{"date_from": {"yesterday"}}, "date_from"},
		{"reversed date range", url.Values{"date_from": {"2025-06-02"}, "date_to": {"2025-06-01"}}, "date_from"},
		{"featured not boolean", url.Values{"featured": {"maybe"}}, "featured"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSearchRequest(tc.params)
			require.Error(t, err)

			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestParseSearchRequest_HashStableAcrossParameterOrder(t *testing.T) {
	a, err := ParseSearchRequest(url.Values{
		"q":         {"iPhone 13"},
		"min_price": {"500"},
		"max_price": {"600"},
		"sort":      {"price_asc"},
	})
	require.NoError(t, err)

	// same parameters, reversed declaration order and different casing
	b, err := ParseSearchRequest(url.Values{
		"sort":      {"price_asc"},
		"max_price": {"600"},
		"min_price": {"500"},
		"q":         {"IPHONE  13"},
	})
	require.NoError(t, err)

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestParseSearchRequest_GeoDefaults(t *testing.T) {
	d, err := ParseSearchRequest(url.Values{"lat": {"52.52"}, "lng": {"13.405"}})
	require.NoError(t, err)

	require.True(t, d.HasGeo())
	assert.Equal(t, defaultRadiusKM, *d.RadiusKM)
}

func TestParseSearchRequest_ConditionsNormalized(t *testing.T) {
	d, err := ParseSearchRequest(url.Values{"condition[]": {"NEW", "good", "new"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"good", "new"}, d.Conditions)
}

func TestParseSearchRequest_DateLayouts(t *testing.T) {
	d, err := ParseSearchRequest(url.Values{
		"date_from": {"2025-06-01"},
		"date_to":   {"2025-06-30T23:59:59Z"},
	})
	require.NoError(t, err)

	require.NotNil(t, d.DateFrom)
	require.NotNil(t, d.DateTo)
	assert.True(t, d.DateFrom.Before(*d.DateTo))
}

func TestValidateDescriptor_SavedSearchFilters(t *testing.T) {
	max := 800.0
	d := &models.QueryDescriptor{Text: "iphone", MaxPrice: &max}
	d.Normalize()

	require.NoError(t, ValidateDescriptor(d))

	bad := &models.QueryDescriptor{PerPage: models.MaxPageSize + 1, Page: 1, Sort: models.SortNewest}
	err := ValidateDescriptor(bad)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}
