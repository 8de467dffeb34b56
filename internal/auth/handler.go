package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/nomina/internal/platform/httpx"
	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// CookieName carries the credential for browser clients.
const CookieName = "nomina_session"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	policy    *Policy
	secure    bool
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, policy *Policy, secureCookies bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		policy:    policy,
		secure:    secureCookies,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.showSession)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type sessionResponse struct {
	State          State           `json:"state"`
	Credential     string          `json:"credential,omitempty"`
	Principal      *rbac.Principal `json:"principal,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	LastActivityAt *time.Time      `json:"last_activity_at,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Field()+" "+fieldErrs[0].Tag())
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sess, err := h.policy.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RegisterSession(r.Context(), sess, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.Credential,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  sess.ExpiresAt,
	})
	httpx.JSON(w, http.StatusOK, sessionResponse{
		State:          StateAuthenticated,
		Credential:     sess.Credential,
		Principal:      &sess.Principal,
		ExpiresAt:      &sess.ExpiresAt,
		LastActivityAt: &sess.LastActivityAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	credential := CredentialFromRequest(r)
	if credential != "" {
		if claims, err := ParseCredential(credential); err == nil {
			if err := h.service.RemoveSession(r.Context(), sessionKey(credential, claims)); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		if err := h.policy.Logout(r.Context(), credential); err != nil {
			h.logger.Warn("logout", slog.Any("error", err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	credential := CredentialFromRequest(r)
	resp := sessionResponse{State: h.policy.State(r.Context(), credential)}
	httpx.JSON(w, http.StatusOK, resp)
}

// CredentialFromRequest reads a bearer credential, falling back to the session cookie.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
