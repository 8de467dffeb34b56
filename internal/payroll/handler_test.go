package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/rbac"
)

type stubEnqueuer struct {
	periods []string
	err     error
}

func (s *stubEnqueuer) EnqueueReport(_ context.Context, p string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.periods = append(s.periods, p)
	return "task-1", nil
}

func newPayrollRouter(t *testing.T, role rbac.Role, enq ReportEnqueuer) (http.Handler, *MemoryRepository) {
	t.Helper()
	ctx := context.Background()
	entities := lifecycle.NewMemoryStore(fixedClock)
	require.NoError(t, entities.Create(ctx, lifecycle.Entity{Type: lifecycle.EntityEmployee, ID: "A", Name: "Ana", Active: true}))
	require.NoError(t, entities.Create(ctx, lifecycle.Entity{Type: lifecycle.EntityEmployee, ID: "C", Name: "Carla", Active: true}))
	manager := lifecycle.NewManager(entities, nil, lifecycle.Config{Clock: fixedClock})

	repo := NewMemoryRepository()
	agg := newAggregator(repo, manager, Config{})
	principal := &rbac.Principal{ID: "p-1", Role: role}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal)))
		})
	})
	NewHandler(nil, agg, rbac.Middleware{Engine: rbac.NewEngine(nil)}, enq).MountRoutes(r)
	return r, repo
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRecordRoundTrip(t *testing.T) {
	router, _ := newPayrollRouter(t, rbac.RoleManager, nil)

	rec := serve(router, http.MethodGet, "/records/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var baseline map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &baseline))
	require.Equal(t, period, baseline["period"])
	require.Len(t, baseline["line_items"], 4)

	body := `{"period":"2024-05-01","line_items":[
		{"concept_id":"concepto-0","name":"Sueldo Base","kind":"PERCEPCION","amount":1000},
		{"concept_id":"concepto-1","name":"Gratificación","kind":"PERCEPCION","amount":200},
		{"concept_id":"concepto-3","name":"ISR","kind":"DEDUCCION","amount":150}]}`
	rec = serve(router, http.MethodPut, "/records/A", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.Equal(t, "1050", saved["net_pay"])

	rec = serve(router, http.MethodGet, "/report?period=2024-05-10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.EqualValues(t, 2, report["active_employee_count"])
	require.Equal(t, "1050", report["total_net_payroll"])
	require.Equal(t, false, report["partial"])
	require.Contains(t, report["summary"], "2 empleados activos")
}

func TestHandlerRejectsInvalidLineItems(t *testing.T) {
	router, _ := newPayrollRouter(t, rbac.RoleAdmin, nil)

	for _, body := range []string{
		`{"line_items":[{"concept_id":"c","name":"Bono","kind":"PERCEPCION","amount":-5}]}`,
		`{"line_items":[{"concept_id":"c","name":"Bono","kind":"PERCEPCION","amount":1000000}]}`,
		`{"line_items":[{"concept_id":"c","name":"Bono","kind":"OTRO","amount":5}]}`,
		`{"line_items":[{"concept_id":"c","name":"B","kind":"PERCEPCION","amount":5}]}`,
		`{"period":"ayer","line_items":[]}`,
		`not json`,
	} {
		rec := serve(router, http.MethodPut, "/records/A", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandlerPermissions(t *testing.T) {
	router, _ := newPayrollRouter(t, rbac.RoleEmployee, nil)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/records/A", "").Code)
	require.Equal(t, http.StatusForbidden, serve(router, http.MethodPut, "/records/A", `{"line_items":[]}`).Code)
	require.Equal(t, http.StatusForbidden, serve(router, http.MethodPost, "/report/jobs", "").Code)
}

func TestHandlerEnqueueReport(t *testing.T) {
	enq := &stubEnqueuer{}
	router, _ := newPayrollRouter(t, rbac.RoleManager, enq)

	rec := serve(router, http.MethodPost, "/report/jobs?period=2024-05-20", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"2024-05-16"}, enq.periods)

	enq.err = errors.New("redis down")
	require.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodPost, "/report/jobs", "").Code)

	noQueue, _ := newPayrollRouter(t, rbac.RoleManager, nil)
	require.Equal(t, http.StatusServiceUnavailable, serve(noQueue, http.MethodPost, "/report/jobs", "").Code)
}
