package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/nomina/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects an upstream
// gate to have stored the principal with ContextWithPrincipal.
type Middleware struct {
	Engine *Engine
	Logger *slog.Logger
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	if len(perms) == 0 {
		return passthrough
	}
	return m.require("require any", func(p *Principal) bool {
		return m.engine().HasAnyPermission(p, perms...)
	})
}

// RequireAll ensures the current principal has all required permissions.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	if len(perms) == 0 {
		return passthrough
	}
	return m.require("require all", func(p *Principal) bool {
		return m.engine().HasAllPermissions(p, perms...)
	})
}

// RequireRole ensures the current principal ranks at least as high as role.
func (m Middleware) RequireRole(role Role) func(http.Handler) http.Handler {
	return m.require("require role", func(p *Principal) bool {
		return m.engine().MeetsRouteRequirement(p, role)
	})
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func (m Middleware) require(op string, allowed func(*Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			if allowed(principal) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac "+op+" denied",
					slog.String("principal", principal.ID),
					slog.String("role", string(principal.Role)),
					slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		})
	}
}

func (m Middleware) engine() *Engine {
	if m.Engine == nil {
		return NewEngine(nil)
	}
	return m.Engine
}
