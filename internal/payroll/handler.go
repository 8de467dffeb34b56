package payroll

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/nomina/internal/platform/httpx"
	"github.com/odyssey-erp/nomina/internal/rbac"
)

// ReportEnqueuer schedules background report aggregation.
type ReportEnqueuer interface {
	EnqueueReport(ctx context.Context, period string) (string, error)
}

// Handler exposes payroll endpoints.
type Handler struct {
	logger     *slog.Logger
	aggregator *Aggregator
	rbac       rbac.Middleware
	enqueuer   ReportEnqueuer
	validator  *validator.Validate
}

// NewHandler builds Handler instance. enqueuer may be nil.
func NewHandler(logger *slog.Logger, aggregator *Aggregator, mw rbac.Middleware, enqueuer ReportEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, aggregator: aggregator, rbac: mw, enqueuer: enqueuer, validator: validator.New()}
}

// MountRoutes registers payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermViewConcepts)).Get("/records/{employeeID}", h.showRecord)
	r.With(h.rbac.RequireAny(rbac.PermEditConcept)).Put("/records/{employeeID}", h.upsertRecord)
	r.With(h.rbac.RequireAny(rbac.PermViewReports)).Get("/report", h.showReport)
	r.With(h.rbac.RequireAny(rbac.PermExportReports)).Post("/report/jobs", h.enqueueReport)
}

func (h *Handler) period(r *http.Request) string {
	if p := r.URL.Query().Get("period"); p != "" {
		return p
	}
	return h.aggregator.CurrentPeriod()
}

func (h *Handler) showRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.aggregator.RecordFor(r.Context(), chi.URLParam(r, "employeeID"), h.period(r))
	if err != nil {
		h.logger.Error("load payroll record", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec.Summarize())
}

type lineItemForm struct {
	ConceptID string  `json:"concept_id" validate:"required"`
	Name      string  `json:"name" validate:"required,min=2,max=100"`
	Kind      string  `json:"kind" validate:"required,oneof=PERCEPCION DEDUCCION"`
	Amount    float64 `json:"amount" validate:"gte=0,lte=999999"`
}

type recordForm struct {
	Period    string         `json:"period"`
	LineItems []lineItemForm `json:"line_items" validate:"dive"`
}

func (h *Handler) upsertRecord(w http.ResponseWriter, r *http.Request) {
	var form recordForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Namespace()+" "+fieldErrs[0].Tag())
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]LineItem, 0, len(form.LineItems))
	for _, f := range form.LineItems {
		item, err := NewLineItem(f.ConceptID, f.Name, Kind(f.Kind), f.Amount)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		items = append(items, item)
	}
	period := form.Period
	if period == "" {
		period = h.aggregator.CurrentPeriod()
	}
	rec, err := h.aggregator.UpsertRecord(r.Context(), Record{EmployeeID: chi.URLParam(r, "employeeID"), Period: period, LineItems: items})
	if err != nil {
		h.logger.Error("upsert payroll record", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec.Summarize())
}

type reportResponse struct {
	ReportTotals
	Partial bool   `json:"partial"`
	Summary string `json:"summary"`
}

func (h *Handler) showReport(w http.ResponseWriter, r *http.Request) {
	totals, err := h.aggregator.ActiveReport(r.Context(), h.period(r))
	if err != nil {
		h.logger.Error("payroll report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reportResponse{ReportTotals: totals, Partial: totals.IsPartial(), Summary: totals.Summary(ReportLocale)})
}

func (h *Handler) enqueueReport(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "report queue not configured")
		return
	}
	period, err := ParsePeriod(h.period(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.enqueuer.EnqueueReport(r.Context(), period)
	if err != nil {
		h.logger.Error("enqueue payroll report", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id, "period": period})
}
