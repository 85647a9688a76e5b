package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"marketplace-search/internal/errs"
	"marketplace-search/internal/models"
	"marketplace-search/internal/search"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type searchMeta struct {
	Query          string   `json:"query"`
	SearchTimeMS   int64    `json:"search_time_ms"`
	FiltersApplied []string `json:"filters_applied"`
	HasNextPage    bool     `json:"has_next_page"`
}

type searchResponse struct {
	Articles   []models.SearchItem `json:"articles"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	TotalPages int64               `json:"total_pages"`
	Meta       searchMeta          `json:"meta"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	descriptor, err := search.ParseSearchRequest(r.URL.Query())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	page, err := s.engine.Search(r.Context(), descriptor)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Articles:   page.Items,
		Total:      page.Total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages(),
		Meta: searchMeta{
			Query:          descriptor.Text,
			SearchTimeMS:   page.TookMS,
			FiltersApplied: appliedFilters(descriptor),
			HasNextPage:    page.HasNextPage(),
		},
	})
}

type suggestionsResponse struct {
	Suggestions     []string              `json:"suggestions"`
	PopularSearches []models.PopularQuery `json:"popular_searches"`
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeErr(w, errs.Validation("limit", "must be an integer"))
			return
		}
		limit = n
	}

	suggestions, err := s.engine.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	popular, err := s.engine.PopularQueries(r.Context(), limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, suggestionsResponse{
		Suggestions:     suggestions,
		PopularSearches: popular,
	})
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	descriptor, err := search.ParseSearchRequest(r.URL.Query())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	facets, err := s.engine.Facets(r.Context(), descriptor)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if facets == nil {
		facets = []models.CategoryFacet{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"facets": facets})
}

type createSavedSearchRequest struct {
	Name                string                 `json:"name"`
	NotificationEnabled bool                   `json:"notification_enabled"`
	Filters             models.QueryDescriptor `json:"filters"`
}

func (s *Server) handleCreateSavedSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req createSavedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, errs.Validation("body", "malformed JSON"))
		return
	}

	if req.Name == "" {
		s.writeErr(w, errs.Validation("name", "must not be empty"))
		return
	}

	req.Filters.Normalize()
	if err := search.ValidateDescriptor(&req.Filters); err != nil {
		s.writeErr(w, err)
		return
	}

	saved, err := s.registry.CreateSavedSearch(r.Context(), userID, req.Name, &req.Filters, req.NotificationEnabled)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListSavedSearches(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	searches, err := s.registry.ListSavedSearches(r.Context(), userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if searches == nil {
		searches = []models.SavedSearch{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"saved_searches": searches})
}

func (s *Server) handleDeleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeErr(w, errs.Validation("id", "must be an integer"))
		return
	}

	if err := s.registry.DeleteSavedSearch(r.Context(), userID, id); err != nil {
		s.writeErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "", "database unreachable")
		return
	}

	status := "ok"
	if err := s.cache.Ping(r.Context()); err != nil {
		// search degrades to uncached but stays available
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// currentUser resolves the caller from the X-User-ID header set by the
// upstream auth layer.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v := r.Header.Get("X-User-ID")
	if v == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "missing user identity")
		return 0, false
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "invalid user identity")
		return 0, false
	}

	return id, true
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation_error", ve.Field, ve.Message)
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "", "saved search not found")
	case errors.Is(err, errs.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "", "saved search belongs to another user")
	case errs.IsUnavailable(err):
		s.logger.Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "", "backing store unreachable")
	default:
		s.logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "", "internal server error")
	}
}

func appliedFilters(d *models.QueryDescriptor) []string {
	applied := []string{}
	if d.HasText() {
		applied = append(applied, "q")
	}
	if d.CategoryID > 0 {
		applied = append(applied, "category_id")
	}
	if d.MinPrice != nil {
		applied = append(applied, "min_price")
	}
	if d.MaxPrice != nil {
		applied = append(applied, "max_price")
	}
	if len(d.Conditions) > 0 {
		applied = append(applied, "condition")
	}
	if d.Location != "" {
		applied = append(applied, "location")
	}
	if d.HasGeo() {
		applied = append(applied, "geo")
	}
	if d.DateFrom != nil || d.DateTo != nil {
		applied = append(applied, "date_range")
	}
	if d.Featured != nil {
		applied = append(applied, "featured")
	}
	return applied
}

type errorBody struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, field, message string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Field: field, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
