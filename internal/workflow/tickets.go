package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/dokkuadmin/banflow/internal/lock"
	"github.com/samber/lo"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ResolveResult lists what a ticket resolution did.
type ResolveResult struct {
	// Resolved holds the tickets this call moved out of PENDING.
	Resolved []string
	// Skipped holds requested tickets that were already resolved.
	Skipped []string
}

// Count returns the number of tickets resolved by the call.
func (r *ResolveResult) Count() int {
	return len(r.Resolved)
}

// ApproveTickets permanently bans the targets of the given tickets and marks
// them APPROVED. Tickets that are no longer pending are skipped. An unknown
// id fails the whole batch before anything is written.
func (w *Workflow) ApproveTickets(ctx context.Context, actor *types.Actor, ticketIDs []string) (*ResolveResult, error) {
	const op = "ApproveTickets"

	if err := w.gate.Require(actor, authz.ActionTicketResolve); err != nil {
		return nil, w.fail(op, actor, err)
	}

	return w.approve(ctx, op, actor, ticketIDs)
}

// ApproveAllTickets approves every pending ticket.
func (w *Workflow) ApproveAllTickets(ctx context.Context, actor *types.Actor) (*ResolveResult, error) {
	const op = "ApproveAllTickets"

	if err := w.gate.Require(actor, authz.ActionTicketResolve); err != nil {
		return nil, w.fail(op, actor, err)
	}

	ids, err := w.moderation.Tickets().GetPendingIDs(ctx)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}

	return w.approve(ctx, op, actor, ids)
}

// RejectTickets marks the given tickets REJECTED. The legacy store is not
// touched, so a rejected block request keeps its 72 hour duration.
func (w *Workflow) RejectTickets(ctx context.Context, actor *types.Actor, ticketIDs []string) (*ResolveResult, error) {
	const op = "RejectTickets"

	if err := w.gate.Require(actor, authz.ActionTicketResolve); err != nil {
		return nil, w.fail(op, actor, err)
	}

	return w.reject(ctx, op, actor, ticketIDs)
}

// RejectAllTickets rejects every pending ticket.
func (w *Workflow) RejectAllTickets(ctx context.Context, actor *types.Actor) (*ResolveResult, error) {
	const op = "RejectAllTickets"

	if err := w.gate.Require(actor, authz.ActionTicketResolve); err != nil {
		return nil, w.fail(op, actor, err)
	}

	ids, err := w.moderation.Tickets().GetPendingIDs(ctx)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}

	return w.reject(ctx, op, actor, ids)
}

func (w *Workflow) approve(ctx context.Context, op string, actor *types.Actor, ticketIDs []string) (*ResolveResult, error) {
	ids := cleanIDs(ticketIDs)
	if len(ids) == 0 {
		return &ResolveResult{}, nil
	}

	release, err := w.lockTickets(ctx, ids)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}
	defer release(ctx)

	pending, skipped, err := w.loadTickets(ctx, ids)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}
	if len(pending) == 0 {
		return &ResolveResult{Skipped: skipped}, nil
	}

	reportIDs := lo.Uniq(lo.Map(pending, func(t *types.BlockTicket, _ int) int64 { return t.ReportID }))

	reports, err := w.legacy.Reports().GetByIDs(ctx, reportIDs)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}
	for _, ticket := range pending {
		if _, ok := reports[ticket.ReportID]; !ok {
			return nil, w.fail(op, actor,
				fmt.Errorf("%w: report %d of ticket %s", types.ErrReportNotFound, ticket.ReportID, ticket.ID))
		}
	}

	// Legacy first. Every report and player in the batch commits together.
	err = w.legacy.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		for _, reportID := range reportIDs {
			report := reports[reportID]

			if err := w.legacy.Reports().SetBanDurationWithTx(
				ctx, tx, reportID, types.BanDurationPermanent,
			); err != nil {
				return err
			}

			if err := w.legacy.Players().ApplyPermanentBanWithTx(
				ctx, tx, report.TargetUserID, report.Reason, report.Admin,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, w.fail(op, actor, err)
	}

	resolved, err := w.resolvePending(ctx, actor, pending, enum.TicketStatusApproved, "TICKET_APPROVE")
	if err != nil {
		// The bans are live but the tickets are still PENDING.
		return &ResolveResult{Skipped: skipped}, w.fail(op, actor, fmt.Errorf("%w: tickets %s: %w",
			ErrPartialCommit, strings.Join(ticketIDsOf(pending), ", "), err))
	}

	result := &ResolveResult{
		Resolved: resolved,
		Skipped:  append(skipped, unresolved(pending, resolved)...),
	}

	w.logger.Info("Approved block tickets",
		zap.String("actorID", actor.ID),
		zap.Strings("resolved", result.Resolved),
		zap.Strings("skipped", result.Skipped))

	if w.opts.NotifyGatewayOnApproval {
		w.notifyApproved(ctx, reportIDs, reports)
	}

	return result, nil
}

func (w *Workflow) reject(ctx context.Context, op string, actor *types.Actor, ticketIDs []string) (*ResolveResult, error) {
	ids := cleanIDs(ticketIDs)
	if len(ids) == 0 {
		return &ResolveResult{}, nil
	}

	release, err := w.lockTickets(ctx, ids)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}
	defer release(ctx)

	pending, skipped, err := w.loadTickets(ctx, ids)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}
	if len(pending) == 0 {
		return &ResolveResult{Skipped: skipped}, nil
	}

	resolved, err := w.resolvePending(ctx, actor, pending, enum.TicketStatusRejected, "TICKET_REJECT")
	if err != nil {
		return nil, w.fail(op, actor, err)
	}

	result := &ResolveResult{
		Resolved: resolved,
		Skipped:  append(skipped, unresolved(pending, resolved)...),
	}

	w.logger.Info("Rejected block tickets",
		zap.String("actorID", actor.ID),
		zap.Strings("resolved", result.Resolved),
		zap.Strings("skipped", result.Skipped))

	return result, nil
}

// resolvePending moves tickets out of PENDING and writes one audit entry in
// the same metadata transaction. Returns the ids that actually moved.
func (w *Workflow) resolvePending(
	ctx context.Context, actor *types.Actor, pending []*types.BlockTicket, status enum.TicketStatus, tag string,
) ([]string, error) {
	resolvedAt := w.now()

	var resolved []string
	err := w.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		resolved = resolved[:0]

		for _, ticket := range pending {
			ok, err := w.moderation.Tickets().ResolveWithTx(ctx, tx, ticket.ID, status, actor.ID, resolvedAt)
			if err != nil {
				return err
			}
			if ok {
				resolved = append(resolved, ticket.ID)
			}
		}

		if len(resolved) == 0 {
			return nil
		}

		return w.moderation.Audit().LogWithTx(ctx, tx, actor.ID,
			fmt.Sprintf("[%s] %d block tickets %s: %s",
				tag, len(resolved), strings.ToLower(string(status)), strings.Join(resolved, ", ")))
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

// loadTickets splits the requested tickets into pending ones and the ids of
// those already resolved. Any unknown id is an error.
func (w *Workflow) loadTickets(ctx context.Context, ids []string) ([]*types.BlockTicket, []string, error) {
	tickets, err := w.moderation.Tickets().GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	found := lo.KeyBy(tickets, func(t *types.BlockTicket) string { return t.ID })
	missing := lo.Filter(ids, func(id string, _ int) bool {
		_, ok := found[id]
		return !ok
	})
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrTicketNotFound, strings.Join(missing, ", "))
	}

	pending, done := lo.FilterReject(tickets, func(t *types.BlockTicket, _ int) bool { return t.IsPending() })

	return pending, ticketIDsOf(done), nil
}

func (w *Workflow) lockTickets(ctx context.Context, ids []string) (lock.Release, error) {
	keys := lo.Map(ids, func(id string, _ int) string { return lock.TicketKey(id) })

	release, err := w.locker.Acquire(ctx, keys, w.opts.TicketLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %w", ErrTicketsBusy, err)
		}
		return nil, err
	}

	return release, nil
}

// notifyApproved pushes approved bans to the game server. Failures are
// logged only; the legacy store already holds the ban.
func (w *Workflow) notifyApproved(
	ctx context.Context, reportIDs []int64, reports map[int64]*types.IncidentReport,
) {
	for _, reportID := range reportIDs {
		report := reports[reportID]

		_, err := w.gateway.Ban(ctx, report.TargetUserID, report.Reason, types.BanDurationPermanent, gateway.ActionBan)
		if err != nil {
			w.logger.Warn("Failed to notify game server of approved ban",
				zap.Int64("reportID", reportID),
				zap.Int64("userID", report.TargetUserID),
				zap.Error(err))
		}
	}
}

func cleanIDs(ids []string) []string {
	return lo.Uniq(lo.Filter(ids, func(id string, _ int) bool { return strings.TrimSpace(id) != "" }))
}

func ticketIDsOf(tickets []*types.BlockTicket) []string {
	return lo.Map(tickets, func(t *types.BlockTicket, _ int) string { return t.ID })
}

func unresolved(pending []*types.BlockTicket, resolved []string) []string {
	ids, _ := lo.Difference(ticketIDsOf(pending), resolved)
	return ids
}
