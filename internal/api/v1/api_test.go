package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/catalog/catalogtest"
	"github.com/vmunix/cinedb/internal/content"
	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/manifest"
	"github.com/vmunix/cinedb/internal/state"
	"github.com/vmunix/cinedb/internal/update"
)

func newTestRouter(t *testing.T, deps ServerDeps) http.Handler {
	t.Helper()
	srv, err := New(deps)
	require.NoError(t, err)
	r := mux.NewRouter()
	srv.RegisterRoutes(r)
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "decode response")
	return v
}

func movieRouter(t *testing.T, n int) http.Handler {
	t.Helper()
	return newTestRouter(t, ServerDeps{Catalog: catalogtest.Open(t, catalogtest.Movies(n))})
}

func TestNew_RequiresCatalog(t *testing.T) {
	_, err := New(ServerDeps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestListEntries_ByCategoryLastPage(t *testing.T) {
	h := movieRouter(t, 45)

	w := serve(h, http.MethodGet, "/api/v1/entries?category=Movies&page=2&size=20", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	p := decode[catalog.Page](t, w)
	assert.Len(t, p.Entries, 5)
	assert.Equal(t, 45, p.TotalCount)
	assert.Equal(t, 2, p.Page)
	assert.False(t, p.HasMore)
}

func TestListEntries_Defaults(t *testing.T) {
	h := movieRouter(t, 25)

	w := serve(h, http.MethodGet, "/api/v1/entries", "")
	require.Equal(t, http.StatusOK, w.Code)

	p := decode[catalog.Page](t, w)
	assert.Len(t, p.Entries, defaultPageSize)
	assert.Equal(t, "Movie 000", p.Entries[0].Title)
	assert.True(t, p.HasMore)
}

func TestListEntries_InvalidPage(t *testing.T) {
	h := movieRouter(t, 3)

	for _, target := range []string{
		"/api/v1/entries?page=-1",
		"/api/v1/entries?size=0",
	} {
		w := serve(h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, "INVALID_REQUEST", decode[errorResponse](t, w).Code)
	}
}

func TestSearch(t *testing.T) {
	h := movieRouter(t, 45)

	w := serve(h, http.MethodGet, "/api/v1/search?q=Movie+04", "")
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[catalog.Page](t, w)
	assert.Equal(t, 5, p.TotalCount)

	w = serve(h, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_QUERY", decode[errorResponse](t, w).Code)
}

func TestFilter(t *testing.T) {
	h := movieRouter(t, 45)

	w := serve(h, http.MethodGet, "/api/v1/filter?year=2002&size=50", "")
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[catalog.Page](t, w)
	assert.Equal(t, 9, p.TotalCount)
	for _, e := range p.Entries {
		assert.Equal(t, "2002", e.Year.String())
	}

	w = serve(h, http.MethodGet, "/api/v1/filter?country=FR", "")
	require.Equal(t, http.StatusOK, w.Code)
	p = decode[catalog.Page](t, w)
	assert.Equal(t, 0, p.TotalCount)
	assert.NotNil(t, p.Entries)
}

func TestFilter_WildcardMatchesEntries(t *testing.T) {
	h := movieRouter(t, 30)

	all := decode[catalog.Page](t, serve(h, http.MethodGet, "/api/v1/entries?page=1&size=7", ""))
	filtered := decode[catalog.Page](t, serve(h, http.MethodGet, "/api/v1/filter?page=1&size=7", ""))
	assert.Equal(t, all, filtered)
}

func TestTopAndRecent(t *testing.T) {
	h := movieRouter(t, 45)

	w := serve(h, http.MethodGet, "/api/v1/top?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	top := decode[listResponse](t, w)
	require.Len(t, top.Items, 2)
	assert.Equal(t, "Movie 039", top.Items[0].Title)
	assert.InDelta(t, 9.5, top.Items[0].Rating.Float(), 0.001)

	w = serve(h, http.MethodGet, "/api/v1/recent?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[listResponse](t, w)
	require.Len(t, recent.Items, 1)
	assert.Equal(t, "Movie 044", recent.Items[0].Title)
}

func TestDistinct(t *testing.T) {
	h := movieRouter(t, 10)

	w := serve(h, http.MethodGet, "/api/v1/distinct/year", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[valuesResponse](t, w)
	assert.Equal(t, "year", v.Field)
	assert.Equal(t, []string{"2004", "2003", "2002", "2001", "2000"}, v.Values)

	w = serve(h, http.MethodGet, "/api/v1/distinct/rating", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEntry(t *testing.T) {
	h := movieRouter(t, 10)

	w := serve(h, http.MethodGet, "/api/v1/entry?title=Movie+007&year=2002", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	e := decode[content.FullEntry](t, w)
	assert.Equal(t, "Movie 007", e.Title)
	require.Len(t, e.Servers, 1)
	assert.Equal(t, "https://cdn.example/7.m3u8", e.Servers[0].URL)
}

func TestGetEntry_MissSuggests(t *testing.T) {
	h := movieRouter(t, 10)

	w := serve(h, http.MethodGet, "/api/v1/entry?title=Movie+0077", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[notFoundResponse](t, w)
	assert.Equal(t, "NOT_FOUND", resp.Code)
	require.NotEmpty(t, resp.Suggestions)
	assert.True(t, strings.HasPrefix(resp.Suggestions[0].Title, "Movie 00"))

	w = serve(h, http.MethodGet, "/api/v1/entry", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCategories(t *testing.T) {
	h := movieRouter(t, 3)

	w := serve(h, http.MethodGet, "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[categoriesResponse](t, w)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, content.CategoryMovie, resp.Items[0].Name)
	assert.Equal(t, []string{"Action"}, resp.Items[0].SubCategories)
}

func TestCatalogNotReady(t *testing.T) {
	store := catalog.New(filepath.Join(t.TempDir(), "catalog.db"), nil)
	h := newTestRouter(t, ServerDeps{Catalog: store})

	w := serve(h, http.MethodGet, "/api/v1/entries", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "CATALOG_NOT_READY", decode[errorResponse](t, w).Code)

	w = serve(h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", decode[statusResponse](t, w).Status)
}

func TestCatalogMissingArtifact(t *testing.T) {
	store := catalog.New(filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.ErrorIs(t, store.Open(context.Background()), catalog.ErrMissing)
	h := newTestRouter(t, ServerDeps{Catalog: store})

	w := serve(h, http.MethodGet, "/api/v1/top", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "CATALOG_UNAVAILABLE", decode[errorResponse](t, w).Code)

	w = serve(h, http.MethodGet, "/api/v1/status", "")
	resp := decode[statusResponse](t, w)
	assert.Equal(t, string(catalog.StateFailed), resp.Catalog.State)
	assert.NotEmpty(t, resp.Catalog.Error)
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	states, err := state.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = states.Close() })
	require.NoError(t, states.RecordInstalled(ctx, "1.0", "abc123"))

	h := newTestRouter(t, ServerDeps{
		Catalog: catalogtest.Open(t, catalogtest.Movies(12)),
		States:  states,
	})

	w := serve(h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[statusResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, string(catalog.StateReady), resp.Catalog.State)
	assert.Equal(t, 12, resp.Catalog.RowCount)
	assert.Equal(t, "1.0", resp.Catalog.Version)
	require.NotNil(t, resp.Update)
	assert.Equal(t, "1.0", resp.Update.InstalledVersion)
	assert.Equal(t, "abc123", resp.Update.InstalledChecksum)
	assert.NotNil(t, resp.Update.InstalledAt)
}

// fakeUpdater returns canned results.
type fakeUpdater struct {
	check  *update.Check
	err    error
	result *update.Result
	force  bool
}

func (f *fakeUpdater) Check(context.Context) (*update.Check, error) {
	return f.check, f.err
}

func (f *fakeUpdater) CheckAndOffer(_ context.Context, force bool) <-chan *update.Result {
	f.force = force
	out := make(chan *update.Result, 1)
	out <- f.result
	close(out)
	return out
}

func TestUpdateRoutes_NoUpdater(t *testing.T) {
	h := movieRouter(t, 1)

	w := serve(h, http.MethodPost, "/api/v1/update/check", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decode[errorResponse](t, w).Code)

	w = serve(h, http.MethodGet, "/api/v1/update/check", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCheckUpdate(t *testing.T) {
	u := &fakeUpdater{check: &update.Check{
		Manifest: &manifest.Manifest{Version: "2.0", Checksum: "abc123", SizeBytes: 1024},
		Local:    state.UpdateState{InstalledVersion: "1.0", InstalledChecksum: "xyz789"},
		Decision: update.Decision{Outcome: update.UpdateAvailable, Reason: update.ReasonNewVersion},
	}}
	h := newTestRouter(t, ServerDeps{Catalog: catalogtest.Open(t, nil), Updater: u})

	w := serve(h, http.MethodPost, "/api/v1/update/check", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[checkResponse](t, w)
	assert.True(t, resp.Available)
	assert.Equal(t, "2.0", resp.Version)
	assert.Equal(t, "1.0", resp.InstalledVersion)
	assert.Equal(t, string(update.ReasonNewVersion), resp.Reason)
	assert.Equal(t, int64(1024), resp.SizeBytes)
}

func TestCheckUpdate_Failure(t *testing.T) {
	u := &fakeUpdater{err: errors.Join(manifest.ErrNetwork, errors.New("dial tcp: refused"))}
	h := newTestRouter(t, ServerDeps{Catalog: catalogtest.Open(t, nil), Updater: u})

	w := serve(h, http.MethodPost, "/api/v1/update/check", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "CHECK_FAILED", decode[errorResponse](t, w).Code)
}

func TestInstallUpdate(t *testing.T) {
	u := &fakeUpdater{result: &update.Result{
		Decision:  update.Decision{Outcome: update.UpdateAvailable, Reason: update.ReasonNewVersion},
		Version:   "2.0",
		Installed: true,
		CanSkip:   true,
		Message:   "Catalog 2.0 installed.",
	}}
	h := newTestRouter(t, ServerDeps{Catalog: catalogtest.Open(t, nil), Updater: u})

	w := serve(h, http.MethodPost, "/api/v1/update/install", `{"force":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[installResponse](t, w)
	assert.True(t, resp.Installed)
	assert.Equal(t, "2.0", resp.Version)
	assert.True(t, u.force)

	w = serve(h, http.MethodPost, "/api/v1/update/install", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, u.force)

	w = serve(h, http.MethodPost, "/api/v1/update/install", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInstallUpdate_Failure(t *testing.T) {
	u := &fakeUpdater{result: &update.Result{
		Version: "2.0",
		CanSkip: true,
		Message: "The downloaded catalog failed verification. Retry the update.",
		Err:     errors.New("checksum mismatch"),
	}}
	h := newTestRouter(t, ServerDeps{Catalog: catalogtest.Open(t, nil), Updater: u})

	w := serve(h, http.MethodPost, "/api/v1/update/install", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[installResponse](t, w)
	assert.True(t, resp.CanSkip)
	assert.Equal(t, "checksum mismatch", resp.Error)
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	states, err := state.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = states.Close() })
	log := events.NewEventLog(states.DB())
	for _, v := range []string{"1.0", "2.0"} {
		_, err := log.Append(&events.ManifestChecked{
			BaseEvent: events.NewBaseEvent(events.EventManifestChecked, events.SubjectManifest),
			Version:   v,
		})
		require.NoError(t, err)
	}

	h := newTestRouter(t, ServerDeps{Catalog: catalogtest.Open(t, nil), EventLog: log})

	w := serve(h, http.MethodGet, "/api/v1/events?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[listEventsResponse](t, w)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, events.EventManifestChecked, resp.Items[0].EventType)
	assert.Contains(t, resp.Items[0].Payload, `"version":"2.0"`)

	w = serve(h, http.MethodGet, "/api/v1/events?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEvents_NoEventLog(t *testing.T) {
	h := movieRouter(t, 1)

	w := serve(h, http.MethodGet, "/api/v1/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "NO_EVENT_LOG", decode[errorResponse](t, w).Code)
}
