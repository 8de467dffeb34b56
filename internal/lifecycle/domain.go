package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/nomina/internal/shared"
)

// EntityType names an administrative record family.
type EntityType string

const (
	EntityEmployee EntityType = "employee"
	EntityUser     EntityType = "user"
)

// Valid reports whether t is a managed entity type.
func (t EntityType) Valid() bool {
	return t == EntityEmployee || t == EntityUser
}

// ParseEntityType normalises raw into an EntityType.
func ParseEntityType(raw string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("lifecycle: entity type %q: %w", raw, shared.ErrEntityNotFound)
	}
	return t, nil
}

// Ref identifies one entity.
type Ref struct {
	Type EntityType
	ID   string
}

func (r Ref) String() string {
	return string(r.Type) + ":" + r.ID
}

// State is the lifecycle position of an entity. Purged entities have no representation.
type State string

const (
	StateActive      State = "ACTIVE"
	StateSoftDeleted State = "SOFT_DELETED"
)

// Entity is an employee or user as seen by the lifecycle rules.
type Entity struct {
	Type      EntityType     `json:"type"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Region    string         `json:"region,omitempty"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Ref returns the entity reference.
func (e Entity) Ref() Ref {
	return Ref{Type: e.Type, ID: e.ID}
}

// State derives the lifecycle state from DeletedAt.
func (e Entity) State() State {
	if e.DeletedAt != nil {
		return StateSoftDeleted
	}
	return StateActive
}

// Patch is a partial update. Nil pointers leave the column untouched.
type Patch struct {
	Active         *bool
	DeletedAt      *time.Time
	ClearDeletedAt bool
	Fields         map[string]any
}

// DeleteMode selects soft or hard removal in the record store.
type DeleteMode int

const (
	DeleteSoft DeleteMode = iota
	DeleteHard
)

// ListFilter selects one of two disjoint views: live records or deleted records.
type ListFilter struct {
	Type        EntityType
	ShowDeleted bool
	Region      string
}

// PurgeOptions carries the explicit signals required for permanent removal.
type PurgeOptions struct {
	Confirmed bool
	Force     bool
}
