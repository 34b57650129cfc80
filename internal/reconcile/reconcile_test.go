package reconcile_test

import (
	"testing"
	"time"

	"github.com/dokkuadmin/banflow/internal/database"
	"github.com/dokkuadmin/banflow/internal/database/dbtest"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/dokkuadmin/banflow/internal/lock"
	"github.com/dokkuadmin/banflow/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stores struct {
	legacy     *database.LegacyClient
	moderation *database.ModerationClient
	locker     *lock.LocalLocker
}

func newStores(t *testing.T) *stores {
	t.Helper()

	return &stores{
		legacy:     dbtest.NewLegacy(t),
		moderation: dbtest.NewModeration(t),
		locker:     lock.NewLocalLocker(),
	}
}

func (s *stores) reconciler(t *testing.T) *reconcile.Reconciler {
	t.Helper()

	return reconcile.New(s.legacy, s.moderation, s.locker, reconcile.Options{
		SystemActorID: "system",
		Lookback:      72 * time.Hour,
		BatchSize:     100,
		Concurrency:   4,
	}, zaptest.NewLogger(t))
}

// seed creates a report for user with the given duration, the player row
// and a ticket. enforced sets the player's ban state to match the report.
func (s *stores) seed(
	t *testing.T, ticketID string, user int64, hours int, enforced bool, status enum.TicketStatus, age time.Duration,
) int64 {
	t.Helper()

	report := &types.IncidentReport{
		Reason:           "cheating",
		IncidentTime:     time.Now(),
		TargetUserID:     user,
		PenaltyType:      enum.PenaltyTypeGameBan,
		BanDurationHours: hours,
		Admin:            "modA",
	}
	reportID, err := s.legacy.Reports().CreateWithTx(t.Context(), s.legacy.DB(), report)
	require.NoError(t, err)

	player := &types.Player{ID: user, Nickname: "player"}
	if enforced {
		player.Banned = true
		player.Bantime = types.PermanentBanTime
		player.Banreason = report.Reason
		player.Banadmin = report.Admin
	}
	dbtest.InsertPlayer(t, s.legacy, player)

	s.ticket(t, ticketID, reportID, status, age)

	return reportID
}

func (s *stores) ticket(t *testing.T, id string, reportID int64, status enum.TicketStatus, age time.Duration) {
	t.Helper()

	ticket := &types.BlockTicket{
		ID:           id,
		ReportID:     reportID,
		RegistrantID: "staff-1",
		Status:       status,
		CreatedAt:    time.Now().Add(-age),
	}
	if status == enum.TicketStatusApproved {
		ticket.ApproverID = "admin-1"
		ticket.ApprovedAt = ticket.CreatedAt
	}

	dbtest.InsertTicket(t, s.moderation, ticket)
}

func (s *stores) seedAll(t *testing.T) {
	t.Helper()

	s.seed(t, "stale", 1, types.BanDurationPermanent, true, enum.TicketStatusPending, time.Hour)
	s.seed(t, "unenforced", 2, types.BanDurationBlockRequest, false, enum.TicketStatusApproved, time.Hour)
	s.seed(t, "healthy-pending", 3, types.BanDurationBlockRequest, false, enum.TicketStatusPending, time.Hour)
	s.seed(t, "healthy-approved", 4, types.BanDurationPermanent, true, enum.TicketStatusApproved, time.Hour)
	s.seed(t, "old-unenforced", 5, types.BanDurationBlockRequest, false, enum.TicketStatusApproved, 100*time.Hour)
	s.ticket(t, "orphan", 999, enum.TicketStatusPending, time.Hour)
}

func kinds(result *reconcile.Result) map[string]reconcile.Kind {
	out := make(map[string]reconcile.Kind, len(result.Divergences))
	for _, d := range result.Divergences {
		out[d.TicketID] = d.Kind
	}
	return out
}

func TestReconciler_DetectOnly(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	s.seedAll(t)

	result, err := s.reconciler(t).Run(t.Context(), false)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Checked)
	assert.Equal(t, map[string]reconcile.Kind{
		"stale":      reconcile.KindStaleTicket,
		"unenforced": reconcile.KindUnenforcedTicket,
		"orphan":     reconcile.KindOrphanTicket,
	}, kinds(result))
	assert.Zero(t, result.Healed())

	tickets, err := s.moderation.Tickets().GetByIDs(t.Context(), []string{"stale"})
	require.NoError(t, err)
	assert.Equal(t, enum.TicketStatusPending, tickets[0].Status)

	player, err := s.legacy.Players().Get(t.Context(), 2)
	require.NoError(t, err)
	assert.False(t, player.Banned)

	count, err := s.moderation.Audit().Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReconciler_Heal(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	s.seedAll(t)
	r := s.reconciler(t)

	result, err := r.Run(t.Context(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Healed())

	for _, d := range result.Divergences {
		assert.Equal(t, d.Kind == reconcile.KindStaleTicket, d.Healed, d.TicketID)
		assert.NoError(t, d.Err, d.TicketID)
	}

	tickets, err := s.moderation.Tickets().GetByIDs(t.Context(), []string{"stale"})
	require.NoError(t, err)
	assert.Equal(t, enum.TicketStatusApproved, tickets[0].Status)
	assert.Equal(t, "system", tickets[0].ApproverID)
	assert.False(t, tickets[0].ApprovedAt.IsZero())

	// Unenforced approvals are reported, never re-banned
	player, err := s.legacy.Players().Get(t.Context(), 2)
	require.NoError(t, err)
	assert.False(t, player.Banned)

	logs, err := s.moderation.Audit().List(t.Context(), "system", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	result, err = r.Run(t.Context(), true)
	require.NoError(t, err)
	assert.Zero(t, result.Healed())
	assert.Equal(t, map[string]reconcile.Kind{
		"unenforced": reconcile.KindUnenforcedTicket,
		"orphan":     reconcile.KindOrphanTicket,
	}, kinds(result))
}

func TestReconciler_KeepsLaterModeratorChanges(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	reportID := s.seed(t, "approved", 7, types.BanDurationPermanent, true, enum.TicketStatusApproved, time.Hour)

	// An admin shortens the ban and the game server lifts it afterwards
	report, err := s.legacy.Reports().Get(t.Context(), reportID)
	require.NoError(t, err)
	report.BanDurationHours = 24
	require.NoError(t, s.legacy.Reports().UpdateWithTx(t.Context(), s.legacy.DB(), report))

	_, err = s.legacy.DB().ExecContext(t.Context(),
		"UPDATE players SET banned = ?, bantime = ? WHERE id = ?", false, "", 7)
	require.NoError(t, err)

	result, err := s.reconciler(t).Run(t.Context(), true)
	require.NoError(t, err)
	assert.Equal(t, map[string]reconcile.Kind{"approved": reconcile.KindUnenforcedTicket}, kinds(result))
	assert.Zero(t, result.Healed())

	report, err = s.legacy.Reports().Get(t.Context(), reportID)
	require.NoError(t, err)
	assert.Equal(t, 24, report.BanDurationHours)

	player, err := s.legacy.Players().Get(t.Context(), 7)
	require.NoError(t, err)
	assert.False(t, player.Banned)

	count, err := s.moderation.Audit().Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReconciler_LookbackUsesApprovalTime(t *testing.T) {
	t.Parallel()

	s := newStores(t)

	// Pending for 100h, approved an hour ago
	s.seed(t, "late", 8, types.BanDurationBlockRequest, false, enum.TicketStatusPending, 100*time.Hour)
	_, err := s.moderation.Tickets().ResolveWithTx(
		t.Context(), s.moderation.DB(), "late", enum.TicketStatusApproved, "admin-1", time.Now().Add(-time.Hour),
	)
	require.NoError(t, err)

	result, err := s.reconciler(t).Run(t.Context(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, map[string]reconcile.Kind{"late": reconcile.KindUnenforcedTicket}, kinds(result))
}

func TestReconciler_SkipsLockedTickets(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	s.seed(t, "stale", 1, types.BanDurationPermanent, true, enum.TicketStatusPending, time.Hour)

	release, err := s.locker.Acquire(t.Context(), []string{lock.TicketKey("stale")}, time.Minute)
	require.NoError(t, err)
	defer release(t.Context())

	result, err := s.reconciler(t).Run(t.Context(), true)
	require.NoError(t, err)
	require.Len(t, result.Divergences, 1)
	assert.False(t, result.Divergences[0].Healed)
	require.ErrorIs(t, result.Divergences[0].Err, lock.ErrLockHeld)
}

func TestReconciler_Empty(t *testing.T) {
	t.Parallel()

	s := newStores(t)

	result, err := s.reconciler(t).Run(t.Context(), true)
	require.NoError(t, err)
	assert.Zero(t, result.Checked)
	assert.Empty(t, result.Divergences)
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	s.seed(t, "stale", 1, types.BanDurationPermanent, true, enum.TicketStatusPending, time.Hour)

	scheduler := reconcile.NewScheduler(s.reconciler(t), s.locker, reconcile.SchedulerOptions{
		Schedule: "@every 1h",
		Heal:     true,
		LockTTL:  time.Minute,
	}, zaptest.NewLogger(t))

	release, err := s.locker.Acquire(t.Context(), []string{lock.JobKey("reconcile")}, time.Minute)
	require.NoError(t, err)

	_, err = scheduler.RunOnce(t.Context())
	require.ErrorIs(t, err, lock.ErrLockHeld)

	release(t.Context())

	result, err := scheduler.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Healed())
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	scheduler := reconcile.NewScheduler(s.reconciler(t), s.locker, reconcile.SchedulerOptions{
		Schedule: "every now and then",
	}, zaptest.NewLogger(t))

	require.Error(t, scheduler.Start())
}
