// Package v1 implements the catalog REST API.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vmunix/cinedb/internal/catalog"
)

const (
	defaultPageSize = 20
	defaultLimit    = 20
	maxLimit        = 200
	suggestCount    = 5
)

// Server is the v1 API server.
type Server struct {
	deps ServerDeps
}

// New creates a new v1 API server.
func New(deps ServerDeps) (*Server, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingDependency, err)
	}
	return &Server{deps: deps}, nil
}

// RegisterRoutes registers API routes on the given router.
func (s *Server) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	// Catalog
	api.HandleFunc("/entries", s.listEntries).Methods(http.MethodGet)
	api.HandleFunc("/search", s.search).Methods(http.MethodGet)
	api.HandleFunc("/filter", s.filter).Methods(http.MethodGet)
	api.HandleFunc("/top", s.topRated).Methods(http.MethodGet)
	api.HandleFunc("/recent", s.recentlyAdded).Methods(http.MethodGet)
	api.HandleFunc("/distinct/{field}", s.distinct).Methods(http.MethodGet)
	api.HandleFunc("/entry", s.getEntry).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.listCategories).Methods(http.MethodGet)

	// Status & updates
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/update/check", s.requireUpdater(s.checkUpdate)).Methods(http.MethodPost)
	api.HandleFunc("/update/install", s.requireUpdater(s.installUpdate)).Methods(http.MethodPost)

	// Events
	api.HandleFunc("/events", s.requireEventLog(s.listEvents)).Methods(http.MethodGet)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)

	var (
		p   *catalog.Page
		err error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		p, err = s.deps.Catalog.ListByCategory(r.Context(), category, page, size)
	} else {
		p, err = s.deps.Catalog.List(r.Context(), page, size)
	}
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "q is required")
		return
	}
	page, size := pageParams(r)
	p, err := s.deps.Catalog.Search(r.Context(), q, page, size)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) filter(w http.ResponseWriter, r *http.Request) {
	f := catalog.Filter{
		Genre:   queryString(r, "genre"),
		Country: queryString(r, "country"),
		Year:    queryString(r, "year"),
	}
	page, size := pageParams(r)
	p, err := s.deps.Catalog.Filter(r.Context(), f, page, size)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) topRated(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Catalog.TopRated(r.Context(), limitParam(r))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (s *Server) recentlyAdded(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Catalog.RecentlyAdded(r.Context(), limitParam(r))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (s *Server) distinct(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["field"]
	field, err := catalog.ParseField(name)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	values, err := s.deps.Catalog.DistinctValues(r.Context(), field)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valuesResponse{Field: name, Values: values})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TITLE", "title is required")
		return
	}

	e, err := s.deps.Catalog.FullEntry(r.Context(), title, queryString(r, "year"))
	if errors.Is(err, catalog.ErrNotFound) {
		suggestions, serr := s.deps.Catalog.Suggest(r.Context(), title, suggestCount)
		if serr != nil || suggestions == nil {
			suggestions = []catalog.Suggestion{}
		}
		writeJSON(w, http.StatusNotFound, notFoundResponse{
			errorResponse: errorResponse{Error: "no entry titled " + strconv.Quote(title), Code: "NOT_FOUND"},
			Suggestions:   suggestions,
		})
		return
	}
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Catalog.Categories(r.Context())
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if items == nil {
		items = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Items: items})
}

// writeCatalogError maps store errors to HTTP statuses.
func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidPage), errors.Is(err, catalog.ErrInvalidField):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, catalog.ErrNotReady), errors.Is(err, catalog.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "CATALOG_NOT_READY", err.Error())
	case errors.Is(err, catalog.ErrMissing), errors.Is(err, catalog.ErrCorrupt):
		writeError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "CATALOG_ERROR", err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, errorResponse{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// pageParams reads page and size. Invalid values are passed through so the
// store can reject them.
func pageParams(r *http.Request) (page, size int) {
	return queryInt(r, "page", 0), queryInt(r, "size", defaultPageSize)
}

// limitParam reads limit, clamped to [1, maxLimit].
func limitParam(r *http.Request) int {
	return min(max(queryInt(r, "limit", defaultLimit), 1), maxLimit)
}

// queryInt extracts an optional integer from query string.
func queryInt(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// queryString extracts an optional string from query string.
func queryString(r *http.Request, name string) *string {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil
	}
	return &val
}
