package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/nomina/internal/platform/httpx"
)

// PermissionsHandler exposes the grants of the current principal.
type PermissionsHandler struct {
	engine *Engine
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(engine *Engine) *PermissionsHandler {
	if engine == nil {
		engine = NewEngine(nil)
	}
	return &PermissionsHandler{engine: engine}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionsResponse struct {
	Principal       Principal    `json:"principal"`
	Permissions     []Permission `json:"permissions"`
	AssignableRoles []Role       `json:"assignable_roles"`
	CanEditUsers    bool         `json:"can_edit_users"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Principal:       *principal,
		Permissions:     h.engine.Catalog().PermissionsFor(principal.Role).Sorted(),
		AssignableRoles: h.engine.AssignableRoles(principal.Role),
		CanEditUsers:    h.engine.CanEditUser(principal.Role),
	})
}

// ServeForTest exposes the list handler for tests.
func (h *PermissionsHandler) ServeForTest(w http.ResponseWriter, r *http.Request) {
	h.listPermissions(w, r)
}
