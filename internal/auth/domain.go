package auth

import (
	"time"

	"github.com/odyssey-erp/nomina/internal/rbac"
)

// DefaultIdleTimeout is the maximum gap between authorized requests.
const DefaultIdleTimeout = 30 * time.Minute

// Redirect targets handed to routers on denial.
const (
	LoginRoute     = "/login"
	DashboardRoute = "/dashboard"
)

// User represents an account able to authenticate.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	Region       string
	IsActive     bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal projects the account onto the authorization model.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{ID: u.ID, Role: u.Role, Region: u.Region}
}

// Session is the server side view of an authenticated credential.
type Session struct {
	ID             string         `json:"id"`
	Credential     string         `json:"credential"`
	Principal      rbac.Principal `json:"principal"`
	IssuedAt       time.Time      `json:"issued_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// State enumerates the session lifecycle.
type State string

const (
	StateUnauthenticated State = "UNAUTHENTICATED"
	StateAuthenticated   State = "AUTHENTICATED"
	StateExpired         State = "EXPIRED"
	StateIdleTimedOut    State = "IDLE_TIMED_OUT"
)

// Grant is what an authentication provider returns on success.
type Grant struct {
	Credential string
	Principal  rbac.Principal
}

// Decision is the outcome of a route gate check.
type Decision struct {
	Allow     bool
	Redirect  string
	Reason    error
	Principal *rbac.Principal
}
