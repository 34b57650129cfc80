package workflow_test

import (
	"testing"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/dokkuadmin/banflow/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) actor(t *testing.T, id string) *types.Actor {
	t.Helper()

	actor, err := f.moderation.Actors().Get(t.Context(), id)
	require.NoError(t, err)

	return actor
}

func TestChangeRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		actor   func(f *fixture) *types.Actor
		target  func(f *fixture) *types.Actor
		role    enum.Role
		wantErr error
	}{
		{
			name:   "master promotes staff to admin",
			actor:  func(f *fixture) *types.Actor { return f.master },
			target: func(f *fixture) *types.Actor { return f.staff },
			role:   enum.RoleIngameAdmin,
		},
		{
			name:    "master cannot grant master",
			actor:   func(f *fixture) *types.Actor { return f.master },
			target:  func(f *fixture) *types.Actor { return f.staff },
			role:    enum.RoleMaster,
			wantErr: authz.ErrPermissionDenied,
		},
		{
			name:    "master cannot touch a peer",
			actor:   func(f *fixture) *types.Actor { return f.master },
			target:  func(f *fixture) *types.Actor { return f.master },
			role:    enum.RoleStaff,
			wantErr: authz.ErrPermissionDenied,
		},
		{
			name:    "admin cannot manage accounts",
			actor:   func(f *fixture) *types.Actor { return f.admin },
			target:  func(f *fixture) *types.Actor { return f.staff },
			role:    enum.RoleStaff,
			wantErr: authz.ErrPermissionDenied,
		},
		{
			name:   "supermaster demotes master",
			actor:  func(f *fixture) *types.Actor { return f.super },
			target: func(f *fixture) *types.Actor { return f.master },
			role:   enum.RoleStaff,
		},
		{
			name:    "supermaster cannot touch another supermaster",
			actor:   func(f *fixture) *types.Actor { return f.super },
			target:  func(f *fixture) *types.Actor { return f.root },
			role:    enum.RoleStaff,
			wantErr: authz.ErrPermissionDenied,
		},
		{
			name:   "root demotes a supermaster",
			actor:  func(f *fixture) *types.Actor { return f.root },
			target: func(f *fixture) *types.Actor { return f.super },
			role:   enum.RoleMaster,
		},
		{
			name:    "unknown role",
			actor:   func(f *fixture) *types.Actor { return f.root },
			target:  func(f *fixture) *types.Actor { return f.staff },
			role:    enum.Role("OWNER"),
			wantErr: workflow.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, workflow.Options{})
			target := tt.target(f)

			err := f.wf.ChangeRole(t.Context(), tt.actor(f), target.ID, tt.role)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, target.Role, f.actor(t, target.ID).Role)
				assert.Zero(t, f.auditCount(t))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.role, f.actor(t, target.ID).Role)
			assert.Equal(t, 1, f.auditCount(t))
		})
	}
}

func TestChangeRole_UsesStoredRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t, workflow.Options{})

	// A session that still claims MASTER after a demotion
	stale := *f.master
	require.NoError(t, f.wf.ChangeRole(t.Context(), f.root, f.master.ID, enum.RoleStaff))

	err := f.wf.ChangeRole(t.Context(), &stale, f.staff.ID, enum.RoleIngameAdmin)
	require.ErrorIs(t, err, authz.ErrPermissionDenied)
	assert.Equal(t, enum.RoleStaff, f.actor(t, f.staff.ID).Role)
}

func TestSetPermission(t *testing.T) {
	t.Parallel()

	f := newFixture(t, workflow.Options{})
	ctx := t.Context()

	require.NoError(t, f.wf.SetPermission(ctx, f.master, f.staff.ID, enum.PermissionAuditView, true))
	require.NoError(t, f.wf.SetPermission(ctx, f.master, f.staff.ID, enum.PermissionMail, true))
	assert.Equal(t, enum.PermissionAuditView|enum.PermissionMail, f.actor(t, f.staff.ID).Permissions)

	require.NoError(t, f.wf.SetPermission(ctx, f.master, f.staff.ID, enum.PermissionAuditView, false))
	assert.Equal(t, enum.PermissionMail, f.actor(t, f.staff.ID).Permissions)

	err := f.wf.SetPermission(ctx, f.master, f.staff.ID, enum.PermissionAuditView|enum.PermissionMail, true)
	require.ErrorIs(t, err, workflow.ErrInvalidInput)

	err = f.wf.SetPermission(ctx, f.admin, f.staff.ID, enum.PermissionBoard, true)
	require.ErrorIs(t, err, authz.ErrPermissionDenied)

	assert.Equal(t, 3, f.auditCount(t))
}

func TestDeleteActor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, workflow.Options{})
	ctx := t.Context()

	require.NoError(t, f.wf.DeleteActor(ctx, f.master, f.staff.ID))

	_, err := f.moderation.Actors().Get(ctx, f.staff.ID)
	require.ErrorIs(t, err, types.ErrActorNotFound)

	err = f.wf.DeleteActor(ctx, f.master, f.staff.ID)
	require.ErrorIs(t, err, types.ErrActorNotFound)

	err = f.wf.DeleteActor(ctx, f.super, f.root.ID)
	require.ErrorIs(t, err, authz.ErrPermissionDenied)

	err = f.wf.DeleteActor(ctx, f.root, f.root.ID)
	require.ErrorIs(t, err, workflow.ErrInvalidInput)

	require.NoError(t, f.wf.DeleteActor(ctx, f.root, f.super.ID))
	assert.Equal(t, 2, f.auditCount(t))
}
