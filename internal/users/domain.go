package users

import (
	"time"

	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/rbac"
)

// User represents a user account for management.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      rbac.Role  `json:"role"`
	Region    string     `json:"region,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Filter narrows the user listing.
type Filter struct {
	ShowDeleted bool
	Role        rbac.Role
	Region      string
}

func fromEntity(e lifecycle.Entity) User {
	u := User{
		ID:        e.ID,
		Name:      e.Name,
		Region:    e.Region,
		IsActive:  e.Active,
		CreatedAt: e.CreatedAt,
		DeletedAt: e.DeletedAt,
	}
	if v, ok := e.Fields["email"].(string); ok {
		u.Email = v
	}
	if v, ok := e.Fields["role"].(string); ok {
		u.Role = rbac.Role(v)
	}
	return u
}
