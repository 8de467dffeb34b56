package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/odyssey-erp/nomina/internal/platform/httpx"
	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// Gate consults CanEnter before every request. Browser navigations are redirected to
// the decision target; API clients receive a problem response with the target in the
// X-Redirect-To header. On success the principal is stored in the request context.
func (p *Policy) Gate(required rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := p.CanEnter(r.Context(), CredentialFromRequest(r), required)
			if decision.Allow {
				ctx := rbac.ContextWithPrincipal(r.Context(), decision.Principal)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if wantsHTML(r) {
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}
			w.Header().Set("X-Redirect-To", decision.Redirect)
			if errors.Is(decision.Reason, shared.ErrCollaboratorUnavailable) {
				httpx.RespondError(w, decision.Reason)
				return
			}
			if decision.Redirect == DashboardRoute {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		})
	}
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
