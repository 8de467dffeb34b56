package rbac

import "sort"

// PermissionSet is an immutable snapshot of the grants of one role.
type PermissionSet map[Permission]struct{}

// Has reports whether p is part of the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// roleHierarchy orders roles for route minimum-role checks only.
var roleHierarchy = [...]Role{RoleEmployee, RoleManager, RoleAdmin}

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermViewEmployees, PermCreateEmployee, PermEditEmployee, PermDeleteEmployee,
		PermViewPositions, PermCreatePosition, PermEditPosition, PermDeletePosition,
		PermViewConcepts, PermCreateConcept, PermEditConcept, PermDeleteConcept,
		PermViewReports, PermExportReports,
		PermViewDashboard,
	},
	RoleManager: {
		PermViewEmployees, PermCreateEmployee, PermEditEmployee,
		PermViewPositions, PermCreatePosition, PermEditPosition,
		PermViewConcepts, PermCreateConcept, PermEditConcept,
		PermViewReports, PermExportReports,
		PermViewDashboard,
	},
	RoleEmployee: {
		PermViewEmployees,
		PermViewPositions,
		PermViewConcepts,
		PermViewReports,
		PermViewDashboard,
	},
}

// Catalog is the static role to permission table. It is built once and never mutated,
// so it is safe for concurrent use without locking.
type Catalog struct {
	grants map[Role]PermissionSet
}

// DefaultCatalog is the catalog shared by the process.
var DefaultCatalog = NewCatalog()

// NewCatalog builds the catalog from the fixed role table.
func NewCatalog() *Catalog {
	grants := make(map[Role]PermissionSet, len(rolePermissions))
	for role, perms := range rolePermissions {
		set := make(PermissionSet, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		grants[role] = set
	}
	return &Catalog{grants: grants}
}

// PermissionsFor returns a copy of the grants of role. Unknown roles get an empty set.
func (c *Catalog) PermissionsFor(role Role) PermissionSet {
	src := c.grants[role]
	out := make(PermissionSet, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}

// RankOf returns the position of role in the EMPLOYEE < MANAGER < ADMIN order, or -1.
func (c *Catalog) RankOf(role Role) int {
	for i, r := range roleHierarchy {
		if r == role {
			return i
		}
	}
	return -1
}

// Roles lists known roles from lowest to highest rank.
func (c *Catalog) Roles() []Role {
	return append([]Role(nil), roleHierarchy[:]...)
}

func (c *Catalog) has(role Role, p Permission) bool {
	return c.grants[role].Has(p)
}
