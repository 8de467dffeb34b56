package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

var (
	adminActor    = &rbac.Principal{ID: "u-admin", Role: rbac.RoleAdmin}
	managerActor  = &rbac.Principal{ID: "u-manager", Role: rbac.RoleManager}
	employeeActor = &rbac.Principal{ID: "u-emp", Role: rbac.RoleEmployee}
)

func newService(t *testing.T) *Service {
	t.Helper()
	clock := shared.Clock(func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) })
	store := lifecycle.NewMemoryStore(clock)
	seed := []struct {
		id, name string
		role     rbac.Role
		region   string
	}{
		{"u-admin", "Alicia", rbac.RoleAdmin, "CENTRO"},
		{"u-admin2", "Arturo", rbac.RoleAdmin, "NORTE"},
		{"u-manager", "Mario", rbac.RoleManager, "SUR"},
		{"u-manager2", "Marta", rbac.RoleManager, "NORTE"},
		{"u-emp", "Elena", rbac.RoleEmployee, "NORTE"},
	}
	for _, s := range seed {
		require.NoError(t, store.Create(context.Background(), lifecycle.Entity{
			Type:   lifecycle.EntityUser,
			ID:     s.id,
			Name:   s.name,
			Region: s.region,
			Active: true,
			Fields: map[string]any{"role": string(s.role), "email": s.id + "@example.com"},
		}))
	}
	manager := lifecycle.NewManager(store, nil, lifecycle.Config{Clock: clock})
	return NewService(manager, nil)
}

// The deletion matrix is not the rank order: a manager may remove an admin while an
// admin may not remove a manager.
func TestDeleteUserFollowsMatrix(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		actor   *rbac.Principal
		target  string
		allowed bool
	}{
		{"admin deletes employee", adminActor, "u-emp", true},
		{"admin cannot delete manager", adminActor, "u-manager2", false},
		{"admin cannot delete admin", adminActor, "u-admin2", false},
		{"manager deletes admin", managerActor, "u-admin2", true},
		{"manager deletes employee", managerActor, "u-emp", true},
		{"manager cannot delete manager", managerActor, "u-manager2", false},
		{"employee deletes nobody", employeeActor, "u-emp", false},
		{"anonymous deletes nobody", nil, "u-emp", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(t)
			user, err := svc.DeleteUser(ctx, tc.actor, tc.target)
			if !tc.allowed {
				require.ErrorIs(t, err, shared.ErrInsufficientPermission)
				return
			}
			require.NoError(t, err)
			require.False(t, user.IsActive)
			require.NotNil(t, user.DeletedAt)
		})
	}
}

func TestListUsersViews(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.DeleteUser(ctx, managerActor, "u-emp")
	require.NoError(t, err)

	live, err := svc.ListUsers(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, live, 4)

	deleted, err := svc.ListUsers(ctx, Filter{ShowDeleted: true})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, "u-emp", deleted[0].ID)
	require.Equal(t, "u-emp@example.com", deleted[0].Email)

	admins, err := svc.ListUsers(ctx, Filter{Role: rbac.RoleAdmin, Region: "NORTE"})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, "u-admin2", admins[0].ID)
}

func TestRestoreUser(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.DeleteUser(ctx, adminActor, "u-emp")
	require.NoError(t, err)

	_, err = svc.RestoreUser(ctx, employeeActor, "u-emp")
	require.ErrorIs(t, err, shared.ErrInsufficientPermission)

	user, err := svc.RestoreUser(ctx, adminActor, "u-emp")
	require.NoError(t, err)
	require.True(t, user.IsActive)
	require.Nil(t, user.DeletedAt)

	_, err = svc.RestoreUser(ctx, adminActor, "u-emp")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestChangeRole(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	user, err := svc.ChangeRole(ctx, adminActor, "u-emp", "manager")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleManager, user.Role)

	_, err = svc.ChangeRole(ctx, adminActor, "u-emp", "ADMIN")
	require.ErrorIs(t, err, shared.ErrInsufficientPermission)

	user, err = svc.ChangeRole(ctx, managerActor, "u-emp", "ADMIN")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleAdmin, user.Role)

	_, err = svc.ChangeRole(ctx, employeeActor, "u-emp", "EMPLOYEE")
	require.ErrorIs(t, err, shared.ErrInsufficientPermission)

	_, err = svc.ChangeRole(ctx, adminActor, "u-emp", "ROOT")
	require.ErrorIs(t, err, shared.ErrUnknownRole)

	_, err = svc.ChangeRole(ctx, adminActor, "missing", "EMPLOYEE")
	require.ErrorIs(t, err, shared.ErrEntityNotFound)
}
