package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/nomina/internal/rbac"
)

func newTestHandler(repo *stubTimelineRepo) http.Handler {
	h := NewHandler(nil, NewService(repo), rbac.Middleware{Engine: rbac.NewEngine(nil)})
	h.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r
}

func request(t *testing.T, router http.Handler, role rbac.Role, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if role != "" {
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), &rbac.Principal{ID: "u-" + strings.ToLower(string(role)), Role: role}))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTimelineRequiresAdmin(t *testing.T) {
	router := newTestHandler(&stubTimelineRepo{})
	require.Equal(t, http.StatusForbidden, request(t, router, rbac.RoleManager, "/audit").Code)
	require.Equal(t, http.StatusForbidden, request(t, router, "", "/audit").Code)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{row("2024-03-14T10:00:00Z", "lifecycle.soft_delete", "emp-1")}}
	rec := request(t, newTestHandler(repo), rbac.RoleAdmin, "/audit?entity=employee")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Rows, 1)
	require.Equal(t, "emp-1", result.Rows[0].EntityID)
	require.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), repo.lastFilter.From)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), repo.lastFilter.To)
	require.Equal(t, "employee", repo.lastFilter.Entity)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newTestHandler(&stubTimelineRepo{})
	for _, target := range []string{
		"/audit?from=marzo",
		"/audit?from=2024-03-10&to=2024-03-01",
		"/audit?from=2023-01-01&to=2024-03-01",
		"/audit?page=0",
		"/audit?page_size=abc",
	} {
		require.Equal(t, http.StatusBadRequest, request(t, router, rbac.RoleAdmin, target).Code, target)
	}
}

func TestExportWritesCSV(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{row("2024-03-14T10:00:00Z", "lifecycle.purge", "emp-9")}}
	rec := request(t, newTestHandler(repo), rbac.RoleAdmin, "/audit/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "lifecycle.purge,employee,emp-9")
}
