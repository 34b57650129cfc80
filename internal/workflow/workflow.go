// Package workflow turns incident reports into enforced bans.
//
// Every operation checks authorization first and never touches a store on
// denial. Writes that span both stores always go legacy first and metadata
// second, each in its own transaction. The only divergence that can be left
// behind is an enforced ban whose ticket or audit entry did not commit; it is
// reported as ErrPartialCommit and repaired by the reconcile package.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/dokkuadmin/banflow/internal/lock"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput is returned for requests that fail validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTicketsBusy is returned when another moderator is resolving one of
	// the requested tickets.
	ErrTicketsBusy = errors.New("tickets are being resolved by another moderator")
	// ErrEnforcementFailed is returned when the game server did not confirm a ban.
	ErrEnforcementFailed = errors.New("enforcement failed")
	// ErrPartialCommit is returned together with a valid result when the
	// legacy store committed but the metadata store did not.
	ErrPartialCommit = errors.New("legacy store committed but metadata store did not")
)

// Enforcer applies bans to the running game session.
type Enforcer interface {
	Ban(ctx context.Context, userID int64, reason string, durationHours int, action gateway.Action) (*gateway.Result, error)
	UpdateHwidBan(ctx context.Context, req gateway.HwidBanRequest) (*gateway.Result, error)
}

// Options tunes workflow behavior.
type Options struct {
	// NotifyGatewayOnApproval makes ticket approval also push the ban to the
	// game server. When false the game server is expected to pick up ban
	// state from the legacy store by itself.
	NotifyGatewayOnApproval bool
	// TicketLockTTL bounds how long a ticket resolution may hold its locks.
	TicketLockTTL time.Duration
}

// Workflow is the report and ticket orchestrator.
type Workflow struct {
	legacy     *database.LegacyClient
	moderation *database.ModerationClient
	gateway    Enforcer
	gate       *authz.Gate
	locker     lock.Locker
	opts       Options
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a Workflow.
func New(
	legacy *database.LegacyClient,
	moderation *database.ModerationClient,
	enforcer Enforcer,
	gate *authz.Gate,
	locker lock.Locker,
	opts Options,
	logger *zap.Logger,
) *Workflow {
	if opts.TicketLockTTL <= 0 {
		opts.TicketLockTTL = 30 * time.Second
	}

	return &Workflow{
		legacy:     legacy,
		moderation: moderation,
		gateway:    enforcer,
		gate:       gate,
		locker:     locker,
		opts:       opts,
		now:        time.Now,
		logger:     logger.Named("workflow"),
	}
}

// fail logs a failed operation with the actor and returns err unchanged.
// Expected refusals log at Warn so only real faults reach Sentry.
func (w *Workflow) fail(op string, actor *types.Actor, err error) error {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("actorID", actorID(actor)),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, authz.ErrPermissionDenied),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrTicketsBusy),
		errors.Is(err, types.ErrReportNotFound),
		errors.Is(err, types.ErrTicketNotFound),
		errors.Is(err, types.ErrActorNotFound):
		w.logger.Warn("Workflow operation refused", fields...)
	default:
		w.logger.Error("Workflow operation failed", fields...)
	}

	return err
}

func actorID(actor *types.Actor) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
