package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/nomina/internal/platform/httpx"
	"github.com/odyssey-erp/nomina/internal/rbac"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleManager))
		r.Get("/", h.listUsers)
		r.Post("/{id}/delete", h.deleteUser)
		r.Post("/{id}/restore", h.restoreUser)
		r.Put("/{id}/role", h.changeRole)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	showDeleted, _ := strconv.ParseBool(q.Get("deleted"))
	users, err := h.service.ListUsers(r.Context(), Filter{
		ShowDeleted: showDeleted,
		Role:        rbac.Role(strings.ToUpper(q.Get("role"))),
		Region:      q.Get("region"),
	})
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.DeleteUser(r.Context(), rbac.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) restoreUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.RestoreUser(r.Context(), rbac.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type roleForm struct {
	Role string `json:"role" validate:"required,oneof=ADMIN MANAGER EMPLOYEE admin manager employee"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var form roleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role must be ADMIN, MANAGER or EMPLOYEE")
		return
	}
	user, err := h.service.ChangeRole(r.Context(), rbac.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), form.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
