package workflow_test

import (
	"testing"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/dokkuadmin/banflow/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseBan(t *testing.T) {
	t.Parallel()

	f := newFixture(t, workflow.Options{})
	ctx := t.Context()

	_, err := f.wf.ReleaseBan(ctx, f.staff, 42, "appeal accepted")
	require.ErrorIs(t, err, authz.ErrPermissionDenied)
	assert.Empty(t, f.gateway.Calls())

	result, err := f.wf.ReleaseBan(ctx, f.admin, 42, "appeal accepted")
	require.NoError(t, err)
	require.NotNil(t, result.Success)
	assert.True(t, *result.Success)

	assert.Equal(t, []gatewayCall{{UserID: 42, Reason: "appeal accepted", Action: gateway.ActionUnban}}, f.gateway.Calls())
	assert.Equal(t, 1, f.auditCount(t))
}

func TestReleaseBan_GatewayFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, workflow.Options{})
	f.gateway.err = errGatewayDown

	_, err := f.wf.ReleaseBan(t.Context(), f.admin, 42, "appeal accepted")
	require.ErrorIs(t, err, workflow.ErrEnforcementFailed)
	assert.Zero(t, f.auditCount(t))
}

func TestHardwareBan(t *testing.T) {
	t.Parallel()

	f := newFixture(t, workflow.Options{})
	ctx := t.Context()

	req := gateway.HwidBanRequest{
		UserID:      42,
		Reason:      "ban evasion",
		Identifiers: []string{"hwid:abc", "license:def"},
	}

	_, err := f.wf.HardwareBan(ctx, f.staff, req)
	require.ErrorIs(t, err, authz.ErrPermissionDenied)

	_, err = f.wf.HardwareBan(ctx, f.admin, gateway.HwidBanRequest{Reason: "missing user"})
	require.ErrorIs(t, err, workflow.ErrInvalidInput)

	_, err = f.wf.HardwareBan(ctx, f.admin, req)
	require.NoError(t, err)

	calls := f.gateway.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Hwid)
	assert.Equal(t, gateway.ActionBan, calls[0].Hwid.Action)
	assert.Equal(t, req.Identifiers, calls[0].Hwid.Identifiers)
	assert.Equal(t, 1, f.auditCount(t))
}
