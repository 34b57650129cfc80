package models_test

import (
	"testing"

	"github.com/dokkuadmin/banflow/internal/database/dbtest"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorModel_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	moderation := dbtest.NewModeration(t)
	actors := moderation.Actors()

	created, err := actors.Create(ctx, &types.Actor{ID: "a1", Name: "alice", Role: enum.RoleStaff})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = actors.Create(ctx, &types.Actor{ID: "a1", Name: "other", Role: enum.RoleMaster})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, actors.SetRoleWithTx(ctx, moderation.DB(), "a1", enum.RoleIngameAdmin))
	require.NoError(t, actors.SetPermissionsWithTx(ctx, moderation.DB(), "a1", enum.PermissionMail))

	actor, err := actors.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alice", actor.Name)
	assert.Equal(t, enum.RoleIngameAdmin, actor.Role)
	assert.True(t, actor.Permissions.Has(enum.PermissionMail))

	require.NoError(t, actors.DeleteWithTx(ctx, moderation.DB(), "a1"))

	_, err = actors.Get(ctx, "a1")
	require.ErrorIs(t, err, types.ErrActorNotFound)
	require.ErrorIs(t, actors.DeleteWithTx(ctx, moderation.DB(), "a1"), types.ErrActorNotFound)
}

func TestAuditModel_LogAndList(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	moderation := dbtest.NewModeration(t)
	audit := moderation.Audit()

	require.NoError(t, audit.LogWithTx(ctx, moderation.DB(), "a1", "first"))
	require.NoError(t, audit.LogWithTx(ctx, moderation.DB(), "a2", "second"))

	count, err := audit.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	logs, err := audit.List(ctx, "a2", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "second", logs[0].Content)
}
