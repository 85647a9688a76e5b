package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEngine struct {
	page        *models.ResultPage
	facets      []models.CategoryFacet
	suggestions []string
	popular     []models.PopularQuery
	err         error

	lastDescriptor *models.QueryDescriptor
}

func (e *fakeEngine) Search(ctx context.Context, d *models.QueryDescriptor) (*models.ResultPage, error) {
	e.lastDescriptor = d
	if e.err != nil {
		return nil, e.err
	}
	return e.page, nil
}

func (e *fakeEngine) Facets(ctx context.Context, d *models.QueryDescriptor) ([]models.CategoryFacet, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.facets, nil
}

func (e *fakeEngine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.suggestions, nil
}

func (e *fakeEngine) PopularQueries(ctx context.Context, limit int) ([]models.PopularQuery, error) {
	return e.popular, nil
}

type fakeRegistry struct {
	searches  []models.SavedSearch
	createErr error
	deleteErr error

	createdName   string
	createdUser   int64
	createdNotify bool
	createdDesc   *models.QueryDescriptor
	deletedID     int64
}

func (r *fakeRegistry) CreateSavedSearch(ctx context.Context, userID int64, name string, d *models.QueryDescriptor, notify bool) (*models.SavedSearch, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.createdUser = userID
	r.createdName = name
	r.createdNotify = notify
	r.createdDesc = d
	return &models.SavedSearch{ID: 1, UserID: userID, Name: name, NotificationEnabled: notify}, nil
}

func (r *fakeRegistry) ListSavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error) {
	return r.searches, nil
}

func (r *fakeRegistry) DeleteSavedSearch(ctx context.Context, userID, id int64) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deletedID = id
	return nil
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

func emptyPage() *models.ResultPage {
	return &models.ResultPage{Items: []models.SearchItem{}, Total: 0, Page: 1, PerPage: 20}
}

func newTestServer(engine *fakeEngine, registry *fakeRegistry, store, cache *fakePinger) *Server {
	if engine == nil {
		engine = &fakeEngine{page: emptyPage()}
	}
	if registry == nil {
		registry = &fakeRegistry{}
	}
	if store == nil {
		store = &fakePinger{}
	}
	if cache == nil {
		cache = &fakePinger{}
	}
	return New(engine, registry, store, cache, zap.NewNop())
}

func doRequest(t *testing.T, s *Server, method, target string, body []byte, userID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestSearchEmptyResultIsWellFormed(t *testing.T) {
	engine := &fakeEngine{page: emptyPage()}
	s := newTestServer(engine, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/search?q=Vintage+Bike&min_price=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	decodeBody(t, rec, &resp)

	assert.NotNil(t, resp.Articles)
	assert.Empty(t, resp.Articles)
	assert.Equal(t, int64(0), resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, "vintage bike", resp.Meta.Query)
	assert.ElementsMatch(t, []string{"q", "min_price"}, resp.Meta.FiltersApplied)
	assert.False(t, resp.Meta.HasNextPage)

	require.NotNil(t, engine.lastDescriptor)
	assert.Equal(t, "vintage bike", engine.lastDescriptor.Text)
}

func TestSearchValidationErrorNamesField(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/search?per_page=999", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "validation_error", resp.Error.Code)
	assert.Equal(t, "per_page", resp.Error.Field)
	assert.NotEmpty(t, resp.Error.Message)
}

func TestSearchStoreUnavailableMapsTo503(t *testing.T) {
	engine := &fakeEngine{err: errs.Unavailable("search listings", errors.New("connection refused"))}
	s := newTestServer(engine, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/search?q=bike", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSuggestions(t *testing.T) {
	engine := &fakeEngine{
		suggestions: []string{"bike", "bike rack"},
		popular:     []models.PopularQuery{{Query: "bike", Count: 12}},
	}
	s := newTestServer(engine, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/search/suggestions?q=bik", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp suggestionsResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"bike", "bike rack"}, resp.Suggestions)
	require.Len(t, resp.PopularSearches, 1)
	assert.Equal(t, "bike", resp.PopularSearches[0].Query)
}

func TestSuggestionsRejectsBadLimit(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/search/suggestions?q=bik&limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFacets(t *testing.T) {
	engine := &fakeEngine{
		page:   emptyPage(),
		facets: []models.CategoryFacet{{CategoryID: 3, Count: 7}},
	}
	s := newTestServer(engine, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/search/facets?q=bike", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Facets []models.CategoryFacet `json:"facets"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Facets, 1)
	assert.Equal(t, int64(3), resp.Facets[0].CategoryID)
}

func TestCreateSavedSearchRequiresIdentity(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/saved-searches",
		[]byte(`{"name":"bikes","filters":{"q":"bike"}}`), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/saved-searches",
		[]byte(`{"name":"bikes","filters":{"q":"bike"}}`), "not-a-number")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSavedSearch(t *testing.T) {
	registry := &fakeRegistry{}
	s := newTestServer(nil, registry, nil, nil)

	body := []byte(`{"name":"Bikes Nearby","notification_enabled":true,"filters":{"q":"  Vintage   BIKE ","min_price":10}}`)
	rec := doRequest(t, s, http.MethodPost, "/api/saved-searches", body, "42")
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, int64(42), registry.createdUser)
	assert.Equal(t, "Bikes Nearby", registry.createdName)
	assert.True(t, registry.createdNotify)
	require.NotNil(t, registry.createdDesc)
	assert.Equal(t, "vintage bike", registry.createdDesc.Text)
}

func TestCreateSavedSearchRejectsEmptyName(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/saved-searches",
		[]byte(`{"name":"","filters":{"q":"bike"}}`), "42")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "name", resp.Error.Field)
}

func TestCreateSavedSearchValidatesFilters(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/saved-searches",
		[]byte(`{"name":"bikes","filters":{"min_price":100,"max_price":10}}`), "42")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "min_price", resp.Error.Field)
}

func TestListSavedSearchesEmptyIsWellFormed(t *testing.T) {
	s := newTestServer(nil, &fakeRegistry{}, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/saved-searches", nil, "42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"saved_searches":[]`)
}

func TestDeleteSavedSearch(t *testing.T) {
	registry := &fakeRegistry{}
	s := newTestServer(nil, registry, nil, nil)

	rec := doRequest(t, s, http.MethodDelete, "/api/saved-searches/7", nil, "42")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(7), registry.deletedID)
}

func TestDeleteSavedSearchErrorMapping(t *testing.T) {
	s := newTestServer(nil, &fakeRegistry{deleteErr: errs.ErrNotFound}, nil, nil)
	rec := doRequest(t, s, http.MethodDelete, "/api/saved-searches/7", nil, "42")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s = newTestServer(nil, &fakeRegistry{deleteErr: errs.ErrForbidden}, nil, nil)
	rec = doRequest(t, s, http.MethodDelete, "/api/saved-searches/7", nil, "42")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(nil, nil, &fakePinger{}, &fakePinger{})
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	s = newTestServer(nil, nil, &fakePinger{}, &fakePinger{err: errors.New("redis down")})
	rec = doRequest(t, s, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	s = newTestServer(nil, nil, &fakePinger{err: errors.New("pg down")}, &fakePinger{})
	rec = doRequest(t, s, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
