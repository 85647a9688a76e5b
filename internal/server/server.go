// Package server exposes the search, suggestions and saved-search HTTP API.
// Authentication runs upstream; the caller's identity arrives resolved in
// the X-User-ID header.
package server

import (
	"context"
	"net/http"
	"time"

	"marketplace-search/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SearchService is the search engine surface the handlers use.
type SearchService interface {
	Search(ctx context.Context, d *models.QueryDescriptor) (*models.ResultPage, error)
	Facets(ctx context.Context, d *models.QueryDescriptor) ([]models.CategoryFacet, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	PopularQueries(ctx context.Context, limit int) ([]models.PopularQuery, error)
}

// SavedSearchStore is the saved-search registry surface the handlers use.
type SavedSearchStore interface {
	CreateSavedSearch(ctx context.Context, userID int64, name string, d *models.QueryDescriptor, notify bool) (*models.SavedSearch, error)
	ListSavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error)
	DeleteSavedSearch(ctx context.Context, userID, id int64) error
}

// Pinger is a health-checkable dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	engine   SearchService
	registry SavedSearchStore
	store    Pinger
	cache    Pinger
	logger   *zap.Logger
	router   *mux.Router
}

func New(engine SearchService, registry SavedSearchStore, store, cacheStore Pinger, logger *zap.Logger) *Server {
	s := &Server{
		engine:   engine,
		registry: registry,
		store:    store,
		cache:    cacheStore,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(RequestID)
	s.router.Use(Recovery(s.logger))
	s.router.Use(Logger(s.logger))

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/search/suggestions", s.handleSuggestions).Methods(http.MethodGet)
	api.HandleFunc("/search/facets", s.handleFacets).Methods(http.MethodGet)
	api.HandleFunc("/saved-searches", s.handleCreateSavedSearch).Methods(http.MethodPost)
	api.HandleFunc("/saved-searches", s.handleListSavedSearches).Methods(http.MethodGet)
	api.HandleFunc("/saved-searches/{id:[0-9]+}", s.handleDeleteSavedSearch).Methods(http.MethodDelete)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("HTTP server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
