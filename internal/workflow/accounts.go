package workflow

import (
	"context"
	"fmt"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ChangeRole assigns a new role to another account.
func (w *Workflow) ChangeRole(ctx context.Context, actor *types.Actor, targetID string, role enum.Role) error {
	const op = "ChangeRole"

	if !role.IsValid() {
		return w.fail(op, actor, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role))
	}

	return w.manage(ctx, op, actor, targetID, func(ctx context.Context, tx bun.Tx, current, target *types.Actor) (string, error) {
		if !w.gate.CanGrant(current, role) {
			return "", fmt.Errorf("%w: %s cannot grant %s", authz.ErrPermissionDenied, current.Role, role)
		}

		if err := w.moderation.Actors().SetRoleWithTx(ctx, tx, target.ID, role); err != nil {
			return "", err
		}

		return fmt.Sprintf("[ROLE_CHANGE] %s (%s): %s -> %s", target.Name, target.ID, target.Role, role), nil
	})
}

// SetPermission turns a single feature flag on or off for another account.
func (w *Workflow) SetPermission(
	ctx context.Context, actor *types.Actor, targetID string, flag enum.Permission, enabled bool,
) error {
	const op = "SetPermission"

	if !flag.IsSingle() {
		return w.fail(op, actor, fmt.Errorf("%w: permission must be a single flag", ErrInvalidInput))
	}

	return w.manage(ctx, op, actor, targetID, func(ctx context.Context, tx bun.Tx, _, target *types.Actor) (string, error) {
		permissions := target.Permissions.With(flag, enabled)
		if err := w.moderation.Actors().SetPermissionsWithTx(ctx, tx, target.ID, permissions); err != nil {
			return "", err
		}

		state := "revoked"
		if enabled {
			state = "granted"
		}

		return fmt.Sprintf("[PERMISSION_CHANGE] %s (%s): %s %s", target.Name, target.ID, flag, state), nil
	})
}

// DeleteActor removes another account. The root account cannot be deleted.
func (w *Workflow) DeleteActor(ctx context.Context, actor *types.Actor, targetID string) error {
	const op = "DeleteActor"

	return w.manage(ctx, op, actor, targetID, func(ctx context.Context, tx bun.Tx, _, target *types.Actor) (string, error) {
		if w.gate.IsRoot(target) {
			return "", fmt.Errorf("%w: the root account cannot be deleted", ErrInvalidInput)
		}

		if err := w.moderation.Actors().DeleteWithTx(ctx, tx, target.ID); err != nil {
			return "", err
		}

		return fmt.Sprintf("[ACCOUNT_DELETE] %s (%s), role %s", target.Name, target.ID, target.Role), nil
	})
}

type accountChange func(ctx context.Context, tx bun.Tx, current, target *types.Actor) (string, error)

// manage checks that actor may administer the target and applies change
// together with its audit entry. Both accounts are re-read from the store so
// a stale session role cannot be used.
func (w *Workflow) manage(ctx context.Context, op string, actor *types.Actor, targetID string, change accountChange) error {
	if err := w.gate.Require(actor, authz.ActionManageAccounts); err != nil {
		return w.fail(op, actor, err)
	}

	current, err := w.moderation.Actors().Get(ctx, actor.ID)
	if err != nil {
		return w.fail(op, actor, err)
	}

	target, err := w.moderation.Actors().Get(ctx, targetID)
	if err != nil {
		return w.fail(op, actor, err)
	}

	if !w.gate.CanManage(current, target) {
		return w.fail(op, actor, fmt.Errorf("%w: %s cannot manage %s (%s)",
			authz.ErrPermissionDenied, current.Role, target.ID, target.Role))
	}

	err = w.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		content, err := change(ctx, tx, current, target)
		if err != nil {
			return err
		}
		return w.moderation.Audit().LogWithTx(ctx, tx, current.ID, content)
	})
	if err != nil {
		return w.fail(op, actor, err)
	}

	w.logger.Info("Changed account",
		zap.String("operation", op),
		zap.String("actorID", current.ID),
		zap.String("targetID", target.ID))

	return nil
}
