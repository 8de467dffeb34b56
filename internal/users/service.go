package users

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// Service handles user business logic on top of the lifecycle manager.
type Service struct {
	manager *lifecycle.Manager
	engine  *rbac.Engine
}

// NewService builds Service instance.
func NewService(manager *lifecycle.Manager, engine *rbac.Engine) *Service {
	if engine == nil {
		engine = rbac.NewEngine(nil)
	}
	return &Service{manager: manager, engine: engine}
}

func ref(id string) lifecycle.Ref {
	return lifecycle.Ref{Type: lifecycle.EntityUser, ID: id}
}

// ListUsers returns the live or deleted view filtered by role and region.
func (s *Service) ListUsers(ctx context.Context, filter Filter) ([]User, error) {
	rows, err := s.manager.List(ctx, lifecycle.ListFilter{
		Type:        lifecycle.EntityUser,
		ShowDeleted: filter.ShowDeleted,
		Region:      filter.Region,
	})
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		u := fromEntity(row)
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// DeleteUser soft deletes target when the deletion matrix allows actor to.
func (s *Service) DeleteUser(ctx context.Context, actor *rbac.Principal, id string) (*User, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || !s.engine.CanDeleteUser(actor.Role, target.Role) {
		return nil, fmt.Errorf("users: delete %s: %w", id, shared.ErrInsufficientPermission)
	}
	e, err := s.manager.SoftDelete(ctx, ref(id))
	if err != nil {
		return nil, err
	}
	u := fromEntity(*e)
	return &u, nil
}

// RestoreUser brings back a soft deleted user.
func (s *Service) RestoreUser(ctx context.Context, actor *rbac.Principal, id string) (*User, error) {
	if actor == nil || !s.engine.CanEditUser(actor.Role) {
		return nil, fmt.Errorf("users: restore %s: %w", id, shared.ErrInsufficientPermission)
	}
	e, err := s.manager.Restore(ctx, ref(id))
	if err != nil {
		return nil, err
	}
	u := fromEntity(*e)
	return &u, nil
}

// ChangeRole assigns role to the user when actor may edit users and assign that role.
func (s *Service) ChangeRole(ctx context.Context, actor *rbac.Principal, id, role string) (*User, error) {
	next, err := rbac.ParseRole(role)
	if err != nil {
		return nil, err
	}
	if actor == nil || !s.engine.CanEditUser(actor.Role) || !s.engine.CanAssignRole(actor.Role, next) {
		return nil, fmt.Errorf("users: assign %s to %s: %w", next, id, shared.ErrInsufficientPermission)
	}
	e, err := s.manager.Update(ctx, ref(id), map[string]any{"role": string(next)})
	if err != nil {
		return nil, err
	}
	u := fromEntity(*e)
	return &u, nil
}

func (s *Service) load(ctx context.Context, id string) (*User, error) {
	e, err := s.manager.Get(ctx, ref(id))
	if err != nil {
		return nil, err
	}
	u := fromEntity(*e)
	return &u, nil
}
