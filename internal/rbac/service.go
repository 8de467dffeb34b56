package rbac

// deletionMatrix lists which target roles each actor role may delete. It is NOT derived
// from the rank order: a MANAGER may delete an ADMIN while an ADMIN may not delete a
// MANAGER. Keep it as a separate table.
var deletionMatrix = map[Role][]Role{
	RoleAdmin:   {RoleEmployee},
	RoleManager: {RoleAdmin, RoleEmployee},
}

var assignmentMatrix = map[Role][]Role{
	RoleAdmin:   {RoleEmployee, RoleManager},
	RoleManager: {RoleEmployee, RoleAdmin},
}

// Engine answers authorization questions. Denials are plain false values.
type Engine struct {
	catalog *Catalog
}

// NewEngine constructs an Engine. A nil catalog uses DefaultCatalog.
func NewEngine(catalog *Catalog) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Engine{catalog: catalog}
}

// Catalog exposes the role table backing the engine.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// HasPermission reports whether p grants perm.
func (e *Engine) HasPermission(p *Principal, perm Permission) bool {
	if p == nil || !p.Role.Valid() {
		return false
	}
	return e.catalog.has(p.Role, perm)
}

// HasAnyPermission reports whether at least one of perms is granted.
func (e *Engine) HasAnyPermission(p *Principal, perms ...Permission) bool {
	for _, perm := range perms {
		if e.HasPermission(p, perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every perm is granted.
func (e *Engine) HasAllPermissions(p *Principal, perms ...Permission) bool {
	if p == nil || !p.Role.Valid() {
		return false
	}
	for _, perm := range perms {
		if !e.HasPermission(p, perm) {
			return false
		}
	}
	return true
}

// MeetsRouteRequirement compares ranks. An empty requirement always passes; an unknown
// principal role or an unknown required role never does.
func (e *Engine) MeetsRouteRequirement(p *Principal, required Role) bool {
	if required == "" {
		return true
	}
	if p == nil {
		return false
	}
	have, need := e.catalog.RankOf(p.Role), e.catalog.RankOf(required)
	if have < 0 || need < 0 {
		return false
	}
	return have >= need
}

// CanDeleteUser applies the fixed deletion matrix.
func (e *Engine) CanDeleteUser(actor, target Role) bool {
	for _, r := range deletionMatrix[actor] {
		if r == target {
			return true
		}
	}
	return false
}

// CanEditUser reports whether actor may edit user accounts.
func (e *Engine) CanEditUser(actor Role) bool {
	return actor == RoleAdmin || actor == RoleManager
}

// AssignableRoles lists the roles actor may grant to another user.
func (e *Engine) AssignableRoles(actor Role) []Role {
	return append([]Role(nil), assignmentMatrix[actor]...)
}

// CanAssignRole reports whether role is in AssignableRoles(actor).
func (e *Engine) CanAssignRole(actor, role Role) bool {
	for _, r := range assignmentMatrix[actor] {
		if r == role {
			return true
		}
	}
	return false
}
