// Package reconcile finds tickets whose metadata disagrees with the ban state
// in the legacy store. Only stale PENDING tickets are repaired. An APPROVED
// ticket without a ban in effect is reported and left alone, since a later
// edit or release by a moderator is the usual cause.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dokkuadmin/banflow/internal/database"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/dokkuadmin/banflow/internal/lock"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Kind classifies a divergence.
type Kind string

const (
	// KindStaleTicket is a PENDING ticket whose ban is already enforced.
	// Left behind when the metadata write after an approval failed.
	KindStaleTicket Kind = "stale_ticket"
	// KindUnenforcedTicket is an APPROVED ticket whose ban is not in effect.
	// Reported only.
	KindUnenforcedTicket Kind = "unenforced_ticket"
	// KindOrphanTicket is a ticket whose report no longer exists.
	KindOrphanTicket Kind = "orphan_ticket"
)

// Divergence is one ticket that disagrees with the legacy store.
type Divergence struct {
	Kind     Kind
	TicketID string
	ReportID int64
	UserID   int64
	Healed   bool
	Err      error // Set when a heal was attempted and failed
}

// Result summarizes a reconciliation pass.
type Result struct {
	Checked     int
	Divergences []Divergence
}

// Count returns the number of divergences of a kind.
func (r *Result) Count(kind Kind) int {
	return lo.CountBy(r.Divergences, func(d Divergence) bool { return d.Kind == kind })
}

// Healed returns the number of divergences repaired in this pass.
func (r *Result) Healed() int {
	return lo.CountBy(r.Divergences, func(d Divergence) bool { return d.Healed })
}

// Options tunes a Reconciler.
type Options struct {
	// SystemActorID is recorded as approver and audit registrant for heals.
	SystemActorID string
	// Lookback limits how far back APPROVED tickets are re-checked, by
	// approval time. PENDING tickets are always checked.
	Lookback time.Duration
	// BatchSize caps the tickets loaded per status.
	BatchSize int
	// Concurrency caps parallel heals.
	Concurrency int
	// LockTTL bounds how long a heal may hold a ticket lock.
	LockTTL time.Duration
}

// Reconciler compares tickets in the metadata store against reports and
// player rows in the legacy store.
type Reconciler struct {
	legacy     *database.LegacyClient
	moderation *database.ModerationClient
	locker     lock.Locker
	opts       Options
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a Reconciler.
func New(
	legacy *database.LegacyClient,
	moderation *database.ModerationClient,
	locker lock.Locker,
	opts Options,
	logger *zap.Logger,
) *Reconciler {
	if opts.SystemActorID == "" {
		opts.SystemActorID = "system"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}

	return &Reconciler{
		legacy:     legacy,
		moderation: moderation,
		locker:     locker,
		opts:       opts,
		now:        time.Now,
		logger:     logger.Named("reconcile"),
	}
}

// Run performs one pass. Without heal it only reports what it finds.
// Heal failures are recorded on their divergence and do not fail the pass.
func (r *Reconciler) Run(ctx context.Context, heal bool) (*Result, error) {
	var since time.Time
	if r.opts.Lookback > 0 {
		since = r.now().Add(-r.opts.Lookback)
	}

	pending, err := r.moderation.Tickets().GetByStatus(ctx, enum.TicketStatusPending, time.Time{}, r.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	approved, err := r.moderation.Tickets().GetApprovedSince(ctx, since, r.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	tickets := append(pending, approved...)
	if len(tickets) == 0 {
		return &Result{}, nil
	}

	reports, err := r.legacy.Reports().GetByIDs(ctx,
		lo.Uniq(lo.Map(tickets, func(t *types.BlockTicket, _ int) int64 { return t.ReportID })))
	if err != nil {
		return nil, err
	}

	players, err := r.legacy.Players().GetByIDs(ctx,
		lo.Uniq(lo.MapToSlice(reports, func(_ int64, report *types.IncidentReport) int64 { return report.TargetUserID })))
	if err != nil {
		return nil, err
	}

	divergences := detect(tickets, reports, players)

	if heal && len(divergences) > 0 {
		divergences = r.healAll(ctx, divergences)
	}

	result := &Result{Checked: len(tickets), Divergences: divergences}

	r.logger.Info("Reconciliation pass finished",
		zap.Int("checked", result.Checked),
		zap.Int("stale", result.Count(KindStaleTicket)),
		zap.Int("unenforced", result.Count(KindUnenforcedTicket)),
		zap.Int("orphaned", result.Count(KindOrphanTicket)),
		zap.Int("healed", result.Healed()),
		zap.Bool("heal", heal))

	return result, nil
}

// detect classifies tickets. Tickets that agree with the legacy store are
// left out.
func detect(
	tickets []*types.BlockTicket, reports map[int64]*types.IncidentReport, players map[int64]*types.Player,
) []Divergence {
	var divergences []Divergence

	for _, ticket := range tickets {
		report, ok := reports[ticket.ReportID]
		if !ok {
			divergences = append(divergences, Divergence{
				Kind:     KindOrphanTicket,
				TicketID: ticket.ID,
				ReportID: ticket.ReportID,
			})
			continue
		}

		player := players[report.TargetUserID]
		enforced := report.IsPermanent() && player != nil && player.IsEnforcedBy(report)

		var kind Kind
		switch {
		case ticket.Status == enum.TicketStatusPending && enforced:
			kind = KindStaleTicket
		case ticket.Status == enum.TicketStatusApproved && !enforced:
			kind = KindUnenforcedTicket
		default:
			continue
		}

		divergences = append(divergences, Divergence{
			Kind:     kind,
			TicketID: ticket.ID,
			ReportID: report.ReportID,
			UserID:   report.TargetUserID,
		})
	}

	return divergences
}

func (r *Reconciler) healAll(ctx context.Context, divergences []Divergence) []Divergence {
	p := pool.NewWithResults[Divergence]().WithMaxGoroutines(r.opts.Concurrency)

	for _, d := range divergences {
		p.Go(func() Divergence {
			switch d.Kind {
			case KindOrphanTicket:
				r.logger.Warn("Ticket references a missing report",
					zap.String("ticketID", d.TicketID),
					zap.Int64("reportID", d.ReportID))
				return d
			case KindUnenforcedTicket:
				r.logger.Warn("Approved ticket has no permanent ban in effect",
					zap.String("ticketID", d.TicketID),
					zap.Int64("reportID", d.ReportID),
					zap.Int64("userID", d.UserID))
				return d
			}

			d.Err = r.heal(ctx, d)
			d.Healed = d.Err == nil

			switch {
			case d.Err == nil:
			case errors.Is(d.Err, errAlreadyResolved), errors.Is(d.Err, lock.ErrLockHeld):
				// A moderator got there first; the next pass re-checks it
				r.logger.Debug("Skipped divergence in use",
					zap.String("ticketID", d.TicketID),
					zap.Error(d.Err))
			default:
				r.logger.Error("Failed to heal divergence",
					zap.String("kind", string(d.Kind)),
					zap.String("ticketID", d.TicketID),
					zap.Int64("reportID", d.ReportID),
					zap.Error(d.Err))
			}

			return d
		})
	}

	healed := p.Wait()

	// Pool results come back in completion order
	sort.Slice(healed, func(i, j int) bool {
		if healed[i].Kind != healed[j].Kind {
			return healed[i].Kind < healed[j].Kind
		}
		return healed[i].TicketID < healed[j].TicketID
	})

	return healed
}

var errAlreadyResolved = errors.New("ticket was resolved concurrently")

// heal repairs one divergence under the ticket's lock, the same lock ticket
// approval holds.
func (r *Reconciler) heal(ctx context.Context, d Divergence) error {
	release, err := r.locker.Acquire(ctx, []string{lock.TicketKey(d.TicketID)}, r.opts.LockTTL)
	if err != nil {
		return err
	}
	defer release(ctx)

	if d.Kind != KindStaleTicket {
		return fmt.Errorf("no heal for %s", d.Kind)
	}

	return r.healStale(ctx, d)
}

// healStale records the approval that already took effect in the legacy store.
func (r *Reconciler) healStale(ctx context.Context, d Divergence) error {
	return r.moderation.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := r.moderation.Tickets().ResolveWithTx(
			ctx, tx, d.TicketID, enum.TicketStatusApproved, r.opts.SystemActorID, r.now(),
		)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyResolved
		}

		return r.moderation.Audit().LogWithTx(ctx, tx, r.opts.SystemActorID,
			fmt.Sprintf("[RECONCILE] ticket %s marked approved: report #%d already enforced on user %d",
				d.TicketID, d.ReportID, d.UserID))
	})
}
