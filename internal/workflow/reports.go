package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ReportInput is a create or update request for an incident report.
type ReportInput struct {
	Report types.IncidentReport
	// IsBlockRequest asks for a permanent ban through ticket review.
	// Only honored for STAFF.
	IsBlockRequest bool
	// IsPermanentBlock bans the target immediately through the game server.
	// Only honored for actors allowed to issue permanent bans.
	IsPermanentBlock bool
}

// Path identifies which branch handled a report write.
type Path string

const (
	PathBlockRequest Path = "block_request"
	PathPermanentBan Path = "permanent_ban"
	PathPlain        Path = "plain"
)

// ReportOutcome describes a saved report.
type ReportOutcome struct {
	ReportID int64
	Path     Path
	// Ticket is the pending ticket for block requests. It may predate the call.
	Ticket *types.BlockTicket
	// Gateway is the game server's reply for permanent bans.
	Gateway *gateway.Result
}

// CreateReport saves a new incident report.
func (w *Workflow) CreateReport(ctx context.Context, actor *types.Actor, in ReportInput) (*ReportOutcome, error) {
	return w.saveReport(ctx, "CreateReport", actor, in, false)
}

// UpdateReport overwrites an existing incident report. It follows the same
// branching as CreateReport.
func (w *Workflow) UpdateReport(
	ctx context.Context, actor *types.Actor, reportID int64, in ReportInput,
) (*ReportOutcome, error) {
	if reportID <= 0 {
		return nil, w.fail("UpdateReport", actor, fmt.Errorf("%w: report id %d", ErrInvalidInput, reportID))
	}

	in.Report.ReportID = reportID

	return w.saveReport(ctx, "UpdateReport", actor, in, true)
}

// GetReport fetches a single report.
func (w *Workflow) GetReport(ctx context.Context, actor *types.Actor, reportID int64) (*types.IncidentReport, error) {
	const op = "GetReport"

	if err := w.gate.Require(actor, authz.ActionReportRead); err != nil {
		return nil, w.fail(op, actor, err)
	}

	report, err := w.legacy.Reports().Get(ctx, reportID)
	if err != nil {
		return nil, w.fail(op, actor, err)
	}

	return report, nil
}

// DeleteReport removes a report and rejects every ticket still pending on
// it. Returns the ids of the rejected tickets.
func (w *Workflow) DeleteReport(ctx context.Context, actor *types.Actor, reportID int64) ([]string, error) {
	const op = "DeleteReport"

	if err := w.gate.Require(actor, authz.ActionReportDelete); err != nil {
		return nil, w.fail(op, actor, err)
	}

	if err := w.legacy.Reports().Delete(ctx, reportID); err != nil {
		return nil, w.fail(op, actor, err)
	}

	var rejected []string
	err := w.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		rejected = rejected[:0]

		ids, err := w.moderation.Tickets().GetPendingIDsByReportWithTx(ctx, tx, reportID)
		if err != nil {
			return err
		}

		for _, id := range ids {
			ok, err := w.moderation.Tickets().ResolveWithTx(ctx, tx, id, enum.TicketStatusRejected, actor.ID, w.now())
			if err != nil {
				return err
			}
			if ok {
				rejected = append(rejected, id)
			}
		}

		content := fmt.Sprintf("[REPORT_DELETE] report #%d deleted", reportID)
		if len(rejected) > 0 {
			content += fmt.Sprintf("; rejected pending tickets: %s", strings.Join(rejected, ", "))
		}

		return w.moderation.Audit().LogWithTx(ctx, tx, actor.ID, content)
	})
	if err != nil {
		return nil, w.fail(op, actor, fmt.Errorf("%w: report %d: %w", ErrPartialCommit, reportID, err))
	}

	w.logger.Info("Deleted incident report",
		zap.String("actorID", actor.ID),
		zap.Int64("reportID", reportID),
		zap.Strings("rejectedTickets", rejected))

	return rejected, nil
}

func (w *Workflow) saveReport(
	ctx context.Context, op string, actor *types.Actor, in ReportInput, update bool,
) (*ReportOutcome, error) {
	if err := w.gate.Require(actor, authz.ActionReportWrite); err != nil {
		return nil, w.fail(op, actor, err)
	}

	report := in.Report
	if err := w.normalizeReport(actor, &report); err != nil {
		return nil, w.fail(op, actor, err)
	}

	var (
		outcome *ReportOutcome
		err     error
	)

	// The branch decides the stored duration, so the caller's value is only
	// validated on the plain path
	switch path := w.choosePath(actor, in); path {
	case PathBlockRequest:
		if err := w.gate.Require(actor, authz.ActionBlockRequest); err != nil {
			return nil, w.fail(op, actor, err)
		}
		outcome, err = w.saveBlockRequest(ctx, actor, &report, update)
	case PathPermanentBan:
		outcome, err = w.savePermanentBan(ctx, actor, &report, update)
	default:
		if err := w.checkPlainDuration(ctx, actor, &report, update); err != nil {
			return nil, w.fail(op, actor, err)
		}
		outcome, err = w.savePlain(ctx, actor, &report, update)
	}

	if err != nil {
		return outcome, w.fail(op, actor, err)
	}

	w.logger.Info("Saved incident report",
		zap.String("operation", op),
		zap.String("actorID", actor.ID),
		zap.Int64("reportID", outcome.ReportID),
		zap.String("path", string(outcome.Path)),
		zap.Int("banDurationHours", report.BanDurationHours))

	return outcome, nil
}

// choosePath picks the branch for a report write. A staff block request
// takes priority over every other flag.
func (w *Workflow) choosePath(actor *types.Actor, in ReportInput) Path {
	switch {
	case actor.Role == enum.RoleStaff && in.IsBlockRequest:
		return PathBlockRequest
	case in.IsPermanentBlock && w.gate.CanPerform(actor.Role, authz.ActionPermanentBan):
		return PathPermanentBan
	default:
		return PathPlain
	}
}

// normalizeReport validates caller input and fills defaults.
func (w *Workflow) normalizeReport(actor *types.Actor, report *types.IncidentReport) error {
	switch {
	case report.TargetUserID <= 0:
		return fmt.Errorf("%w: target user id is required", ErrInvalidInput)
	case strings.TrimSpace(report.Reason) == "":
		return fmt.Errorf("%w: reason is required", ErrInvalidInput)
	case !report.PenaltyType.IsValid():
		return fmt.Errorf("%w: unknown penalty type %q", ErrInvalidInput, report.PenaltyType)
	case report.WarningCount < 0, report.DetentionTimeMinutes < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidInput)
	}

	if report.IncidentTime.IsZero() {
		report.IncidentTime = w.now()
	}
	if report.Admin == "" {
		report.Admin = actor.Name
	}

	return nil
}

// checkPlainDuration validates a caller-supplied duration. Storing -1, or
// changing a report that is already -1, needs the permanent ban permission.
func (w *Workflow) checkPlainDuration(
	ctx context.Context, actor *types.Actor, report *types.IncidentReport, update bool,
) error {
	if report.BanDurationHours < types.BanDurationPermanent {
		return fmt.Errorf("%w: %w: %d", ErrInvalidInput, types.ErrInvalidBanDuration, report.BanDurationHours)
	}

	if w.gate.CanPerform(actor.Role, authz.ActionPermanentBan) {
		return nil
	}

	if report.IsPermanent() {
		return w.gate.Require(actor, authz.ActionPermanentBan)
	}

	if !update {
		return nil
	}

	stored, err := w.legacy.Reports().Get(ctx, report.ReportID)
	if err != nil {
		return err
	}
	if stored.IsPermanent() {
		return fmt.Errorf("%w: report %d carries a permanent ban", authz.ErrPermissionDenied, report.ReportID)
	}

	return nil
}

func (w *Workflow) writeReport(ctx context.Context, tx bun.IDB, report *types.IncidentReport, update bool) error {
	if update {
		return w.legacy.Reports().UpdateWithTx(ctx, tx, report)
	}

	_, err := w.legacy.Reports().CreateWithTx(ctx, tx, report)
	return err
}

// saveBlockRequest writes the report with the provisional duration and files
// a ticket for review. An open ticket for the same report is reused.
func (w *Workflow) saveBlockRequest(
	ctx context.Context, actor *types.Actor, report *types.IncidentReport, update bool,
) (*ReportOutcome, error) {
	report.BanDurationHours = types.BanDurationBlockRequest

	err := w.legacy.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return w.writeReport(ctx, tx, report, update)
	})
	if err != nil {
		return nil, err
	}

	outcome := &ReportOutcome{ReportID: report.ReportID, Path: PathBlockRequest}

	ticket, err := w.moderation.Tickets().GetPendingByReport(ctx, report.ReportID)
	if err != nil {
		return outcome, fmt.Errorf("%w: report %d: %w", ErrPartialCommit, report.ReportID, err)
	}

	created := ticket == nil
	if created {
		ticket = &types.BlockTicket{
			ID:           uuid.NewString(),
			ReportID:     report.ReportID,
			RegistrantID: actor.ID,
			Status:       enum.TicketStatusPending,
			CreatedAt:    w.now(),
		}
	}

	err = w.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if created {
			if err := w.moderation.Tickets().CreateWithTx(ctx, tx, ticket); err != nil {
				return err
			}
		}

		content := fmt.Sprintf("[BLOCK_REQUEST] report #%d on user %d: ticket %s pending approval (ban %dh)",
			report.ReportID, report.TargetUserID, ticket.ID, report.BanDurationHours)
		if !created {
			content += " (existing ticket)"
		}

		return w.moderation.Audit().LogWithTx(ctx, tx, actor.ID, content)
	})
	if err != nil {
		return outcome, fmt.Errorf("%w: report %d: %w", ErrPartialCommit, report.ReportID, err)
	}

	outcome.Ticket = ticket

	return outcome, nil
}

// savePermanentBan writes the report as permanent, bans the player row and
// pushes the ban to the game server before the legacy transaction commits.
// A gateway failure rolls both writes back.
func (w *Workflow) savePermanentBan(
	ctx context.Context, actor *types.Actor, report *types.IncidentReport, update bool,
) (*ReportOutcome, error) {
	report.BanDurationHours = types.BanDurationPermanent

	var enforce enforceOnce
	err := w.legacy.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := w.writeReport(ctx, tx, report, update); err != nil {
			return err
		}

		if err := w.legacy.Players().ApplyPermanentBanWithTx(
			ctx, tx, report.TargetUserID, report.Reason, report.Admin,
		); err != nil {
			return err
		}

		if _, err := enforce.ban(ctx, w.gateway, report.TargetUserID, report.Reason); err != nil {
			// The gateway retries on its own
			return dbretry.Permanent(fmt.Errorf("%w: user %d: %w", ErrEnforcementFailed, report.TargetUserID, err))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := &ReportOutcome{ReportID: report.ReportID, Path: PathPermanentBan, Gateway: enforce.result}

	err = w.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return w.moderation.Audit().LogWithTx(ctx, tx, actor.ID,
			fmt.Sprintf("[PERMANENT_BAN] report #%d: user %d permanently banned on the game server (%s)",
				report.ReportID, report.TargetUserID, report.Reason))
	})
	if err != nil {
		return outcome, fmt.Errorf("%w: report %d: %w", ErrPartialCommit, report.ReportID, err)
	}

	return outcome, nil
}

// savePlain writes the report as given.
func (w *Workflow) savePlain(
	ctx context.Context, actor *types.Actor, report *types.IncidentReport, update bool,
) (*ReportOutcome, error) {
	err := w.legacy.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return w.writeReport(ctx, tx, report, update)
	})
	if err != nil {
		return nil, err
	}

	outcome := &ReportOutcome{ReportID: report.ReportID, Path: PathPlain}

	verb := "REPORT_CREATE"
	if update {
		verb = "REPORT_UPDATE"
	}

	err = w.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return w.moderation.Audit().LogWithTx(ctx, tx, actor.ID,
			fmt.Sprintf("[%s] report #%d on user %d: %s, ban %dh",
				verb, report.ReportID, report.TargetUserID, report.PenaltyType, report.BanDurationHours))
	})
	if err != nil {
		return outcome, fmt.Errorf("%w: report %d: %w", ErrPartialCommit, report.ReportID, err)
	}

	return outcome, nil
}

// enforceOnce remembers a successful gateway ban so that a transaction
// retried after BEGIN or COMMIT failed does not call the game server again.
type enforceOnce struct {
	result *gateway.Result
}

func (o *enforceOnce) ban(ctx context.Context, enforcer Enforcer, userID int64, reason string) (*gateway.Result, error) {
	if o.result != nil {
		return o.result, nil
	}

	result, err := enforcer.Ban(ctx, userID, reason, types.BanDurationPermanent, gateway.ActionBan)
	if err != nil {
		return nil, err
	}

	o.result = result

	return result, nil
}
