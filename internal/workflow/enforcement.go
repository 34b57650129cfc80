package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ReleaseBan lifts a ban on the game server. The legacy store is left as is;
// a BAN_RELEASE report is the record of the release.
func (w *Workflow) ReleaseBan(ctx context.Context, actor *types.Actor, userID int64, reason string) (*gateway.Result, error) {
	const op = "ReleaseBan"

	if err := w.gate.Require(actor, authz.ActionReleaseBan); err != nil {
		return nil, w.fail(op, actor, err)
	}
	if userID <= 0 {
		return nil, w.fail(op, actor, fmt.Errorf("%w: user id is required", ErrInvalidInput))
	}

	result, err := w.gateway.Ban(ctx, userID, reason, types.BanDurationNone, gateway.ActionUnban)
	if err != nil {
		return nil, w.fail(op, actor, fmt.Errorf("%w: user %d: %w", ErrEnforcementFailed, userID, err))
	}

	err = w.audit(ctx, actor, fmt.Sprintf("[BAN_RELEASE] user %d released on the game server (%s)", userID, reason))
	if err != nil {
		return result, w.fail(op, actor, fmt.Errorf("%w: user %d: %w", ErrPartialCommit, userID, err))
	}

	w.logger.Info("Released ban",
		zap.String("actorID", actor.ID),
		zap.Int64("userID", userID))

	return result, nil
}

// HardwareBan applies or lifts a hardware ban on the game server.
func (w *Workflow) HardwareBan(ctx context.Context, actor *types.Actor, req gateway.HwidBanRequest) (*gateway.Result, error) {
	const op = "HardwareBan"

	if err := w.gate.Require(actor, authz.ActionHardwareBan); err != nil {
		return nil, w.fail(op, actor, err)
	}
	if req.UserID <= 0 {
		return nil, w.fail(op, actor, fmt.Errorf("%w: user id is required", ErrInvalidInput))
	}
	if req.Action == "" {
		req.Action = gateway.ActionBan
	}

	result, err := w.gateway.UpdateHwidBan(ctx, req)
	if err != nil {
		return nil, w.fail(op, actor, fmt.Errorf("%w: user %d: %w", ErrEnforcementFailed, req.UserID, err))
	}

	content := fmt.Sprintf("[HWID_%s] user %d (%s)", strings.ToUpper(string(req.Action)), req.UserID, req.Reason)
	if len(req.Identifiers) > 0 {
		content += ": " + strings.Join(req.Identifiers, ", ")
	}

	if err := w.audit(ctx, actor, content); err != nil {
		return result, w.fail(op, actor, fmt.Errorf("%w: user %d: %w", ErrPartialCommit, req.UserID, err))
	}

	return result, nil
}

func (w *Workflow) audit(ctx context.Context, actor *types.Actor, content string) error {
	return w.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return w.moderation.Audit().LogWithTx(ctx, tx, actor.ID, content)
	})
}
