package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Text(t *testing.T) {
	d := QueryDescriptor{Text: "  iPhone   13\t Pro "}
	d.Normalize()

	assert.Equal(t, "iphone 13 pro", d.Text)
	assert.Equal(t, 1, d.Page)
	assert.Equal(t, DefaultPageSize, d.PerPage)
	assert.Equal(t, SortRelevance, d.Sort)
}

func TestNormalize_TruncatesLongText(t *testing.T) {
	d := QueryDescriptor{Text: strings.Repeat("a", 500)}
	d.Normalize()

	assert.Len(t, []rune(d.Text), MaxQueryLength)
}

func TestNormalize_Conditions(t *testing.T) {
	d := QueryDescriptor{Conditions: []string{"Good", "NEW", "good", " new "}}
	d.Normalize()

	assert.Equal(t, []string{"good", "new"}, d.Conditions)
}

func TestHash_IgnoresParameterOrderAndCasing(t *testing.T) {
	min, max := 500.0, 800.0

	a := QueryDescriptor{
		Text:       "iPhone  13",
		MinPrice:   &min,
		MaxPrice:   &max,
		Conditions: []string{"new", "good"},
	}
	b := QueryDescriptor{
		Conditions: []string{"GOOD", "NEW"},
		MaxPrice:   &max,
		MinPrice:   &min,
		Text:       "iphone 13",
	}

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHash_DiffersWhenFieldsDiffer(t *testing.T) {
	base := QueryDescriptor{Text: "bike"}

	cases := map[string]QueryDescriptor{
		"text":     {Text: "bikes"},
		"category": {Text: "bike", CategoryID: 3},
		"page":     {Text: "bike", Page: 2},
		"sort":     {Text: "bike", Sort: SortNewest},
	}

	for name, other := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base.Hash(), other.Hash())
		})
	}
}

func TestHash_StableAcrossCalls(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d := QueryDescriptor{Text: "sofa", DateFrom: &from}

	assert.Equal(t, d.Hash(), d.Hash())
}

func TestNormalized_DoesNotMutateReceiver(t *testing.T) {
	d := QueryDescriptor{Text: "  MIXED Case  ", Conditions: []string{"NEW"}}
	n := d.Normalized()

	assert.Equal(t, "  MIXED Case  ", d.Text)
	assert.Equal(t, []string{"NEW"}, d.Conditions)
	assert.Equal(t, "mixed case", n.Text)
}

func TestOffset(t *testing.T) {
	d := QueryDescriptor{Page: 3, PerPage: 20}
	assert.Equal(t, 40, d.Offset())
}

func TestSavedSearchDescriptor_RoundTrip(t *testing.T) {
	ss := SavedSearch{Filters: RawJSON(`{"q":"iPhone","max_price":800}`)}

	d, err := ss.Descriptor()
	require.NoError(t, err)

	assert.Equal(t, "iphone", d.Text)
	require.NotNil(t, d.MaxPrice)
	assert.Equal(t, 800.0, *d.MaxPrice)
	assert.Equal(t, SortRelevance, d.Sort)
}

func TestResultPage_TotalPages(t *testing.T) {
	cases := []struct {
		total   int64
		perPage int
		pages   int64
		hasNext bool
		page    int
	}{
		{total: 0, perPage: 20, pages: 0, page: 1, hasNext: false},
		{total: 20, perPage: 20, pages: 1, page: 1, hasNext: false},
		{total: 21, perPage: 20, pages: 2, page: 1, hasNext: true},
		{total: 41, perPage: 20, pages: 3, page: 3, hasNext: false},
	}

	for _, tc := range cases {
		p := ResultPage{Total: tc.total, PerPage: tc.perPage, Page: tc.page}
		assert.Equal(t, tc.pages, p.TotalPages(), "total=%d", tc.total)
		assert.Equal(t, tc.hasNext, p.HasNextPage(), "total=%d page=%d", tc.total, tc.page)
	}
}
