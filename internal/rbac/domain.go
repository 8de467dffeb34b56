package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/nomina/internal/shared"
)

// Role represents a high-level permission grouping.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// ParseRole normalises user input into a Role. Unknown names yield ErrUnknownRole.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("rbac: parse role %q: %w", raw, shared.ErrUnknownRole)
	}
	return role, nil
}

// Permission represents an atomic capability.
type Permission string

const (
	PermViewEmployees  Permission = "VIEW_EMPLOYEES"
	PermCreateEmployee Permission = "CREATE_EMPLOYEE"
	PermEditEmployee   Permission = "EDIT_EMPLOYEE"
	PermDeleteEmployee Permission = "DELETE_EMPLOYEE"

	PermViewPositions  Permission = "VIEW_POSITIONS"
	PermCreatePosition Permission = "CREATE_POSITION"
	PermEditPosition   Permission = "EDIT_POSITION"
	PermDeletePosition Permission = "DELETE_POSITION"

	PermViewConcepts  Permission = "VIEW_CONCEPTS"
	PermCreateConcept Permission = "CREATE_CONCEPT"
	PermEditConcept   Permission = "EDIT_CONCEPT"
	PermDeleteConcept Permission = "DELETE_CONCEPT"

	PermViewReports   Permission = "VIEW_REPORTS"
	PermExportReports Permission = "EXPORT_REPORTS"

	PermViewDashboard Permission = "VIEW_DASHBOARD"
)

// Principal describes the authenticated actor.
type Principal struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Region string `json:"region"`
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
