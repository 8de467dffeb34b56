package lifecycle

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/nomina/internal/platform/httpx"
	"github.com/odyssey-erp/nomina/internal/rbac"
)

// Handler exposes lifecycle operations for one entity type.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
	rbac    rbac.Middleware
	kind    EntityType
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, mw rbac.Middleware, kind EntityType) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, rbac: mw, kind: kind}
}

// MountRoutes registers lifecycle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermViewEmployees))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermEditEmployee))
		r.Post("/{id}/toggle", h.toggle)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermDeleteEmployee))
		r.Post("/{id}/delete", h.softDelete)
		r.Post("/{id}/restore", h.restore)
		r.Delete("/{id}", h.purge)
	})
}

func (h *Handler) ref(r *http.Request) Ref {
	return Ref{Type: h.kind, ID: chi.URLParam(r, "id")}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	showDeleted, _ := strconv.ParseBool(r.URL.Query().Get("deleted"))
	rows, err := h.manager.List(r.Context(), ListFilter{
		Type:        h.kind,
		ShowDeleted: showDeleted,
		Region:      r.URL.Query().Get("region"),
	})
	if err != nil {
		h.logger.Error("list entities", slog.String("type", string(h.kind)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []Entity{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	e, err := h.manager.Get(r.Context(), h.ref(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.manager.SoftDelete)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.manager.Restore)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.manager.ToggleActive)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, Ref) (*Entity, error)) {
	e, err := op(r.Context(), h.ref(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	confirmed, _ := strconv.ParseBool(q.Get("confirm"))
	force, _ := strconv.ParseBool(q.Get("force"))
	principal := rbac.PrincipalFromContext(r.Context())
	if err := h.manager.Purge(r.Context(), principal, h.ref(r), PurgeOptions{Confirmed: confirmed, Force: force}); err != nil {
		if !IsTerminal(err) {
			h.logger.Warn("purge rejected", slog.String("entity", h.ref(r).String()), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
