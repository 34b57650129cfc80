package models_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dokkuadmin/banflow/internal/database/dbtest"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingTicket(id string, reportID int64, createdAt time.Time) *types.BlockTicket {
	return &types.BlockTicket{
		ID:           id,
		ReportID:     reportID,
		RegistrantID: "staff-1",
		Status:       enum.TicketStatusPending,
		CreatedAt:    createdAt,
	}
}

func TestTicketModel_ResolveOnlyFromPending(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	moderation := dbtest.NewModeration(t)
	tickets := moderation.Tickets()
	now := time.Now()

	dbtest.InsertTicket(t, moderation, pendingTicket("t1", 501, now))

	ok, err := tickets.ResolveWithTx(ctx, moderation.DB(), "t1", enum.TicketStatusApproved, "admin-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// A terminal ticket never moves again
	ok, err = tickets.ResolveWithTx(ctx, moderation.DB(), "t1", enum.TicketStatusRejected, "admin-2", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := tickets.GetByIDs(ctx, []string{"t1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, enum.TicketStatusApproved, got[0].Status)
	assert.Equal(t, "admin-1", got[0].ApproverID)
	assert.False(t, got[0].ApprovedAt.IsZero())
}

func TestTicketModel_RejectLeavesApprovedAtEmpty(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	moderation := dbtest.NewModeration(t)
	dbtest.InsertTicket(t, moderation, pendingTicket("t1", 501, time.Now()))

	ok, err := moderation.Tickets().ResolveWithTx(
		ctx, moderation.DB(), "t1", enum.TicketStatusRejected, "admin-1", time.Now(),
	)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := moderation.Tickets().GetByIDs(ctx, []string{"t1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, enum.TicketStatusRejected, got[0].Status)
	assert.True(t, got[0].ApprovedAt.IsZero())
}

func TestTicketModel_ConcurrentResolveHasOneWinner(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	moderation := dbtest.NewModeration(t)
	dbtest.InsertTicket(t, moderation, pendingTicket("t1", 501, time.Now()))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ok, err := moderation.Tickets().ResolveWithTx(
				ctx, moderation.DB(), "t1", enum.TicketStatusApproved, "admin", time.Now(),
			)
			assert.NoError(t, err)

			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTicketModel_PendingQueries(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	moderation := dbtest.NewModeration(t)
	base := time.Now().Add(-time.Hour)

	dbtest.InsertTicket(t, moderation, pendingTicket("old", 1, base))
	dbtest.InsertTicket(t, moderation, pendingTicket("new", 2, base.Add(time.Minute)))
	dbtest.InsertTicket(t, moderation, pendingTicket("done", 1, base.Add(2*time.Minute)))

	_, err := moderation.Tickets().ResolveWithTx(
		ctx, moderation.DB(), "done", enum.TicketStatusRejected, "admin", time.Now(),
	)
	require.NoError(t, err)

	ids, err := moderation.Tickets().GetPendingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, ids)

	ticket, err := moderation.Tickets().GetPendingByReport(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, "old", ticket.ID)

	ticket, err = moderation.Tickets().GetPendingByReport(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, ticket)

	rejected, err := moderation.Tickets().GetByStatus(ctx, enum.TicketStatusRejected, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "done", rejected[0].ID)
}

func TestTicketModel_GetApprovedSinceUsesApprovalTime(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	moderation := dbtest.NewModeration(t)
	now := time.Now()

	// Filed long ago, approved recently
	dbtest.InsertTicket(t, moderation, pendingTicket("late", 1, now.Add(-100*time.Hour)))
	// Filed and approved long ago
	dbtest.InsertTicket(t, moderation, pendingTicket("early", 2, now.Add(-100*time.Hour)))
	dbtest.InsertTicket(t, moderation, pendingTicket("open", 3, now.Add(-time.Hour)))

	_, err := moderation.Tickets().ResolveWithTx(
		ctx, moderation.DB(), "late", enum.TicketStatusApproved, "admin", now.Add(-time.Hour),
	)
	require.NoError(t, err)
	_, err = moderation.Tickets().ResolveWithTx(
		ctx, moderation.DB(), "early", enum.TicketStatusApproved, "admin", now.Add(-99*time.Hour),
	)
	require.NoError(t, err)

	tickets, err := moderation.Tickets().GetApprovedSince(ctx, now.Add(-72*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "late", tickets[0].ID)

	tickets, err = moderation.Tickets().GetApprovedSince(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, []string{"early", "late"}, []string{tickets[0].ID, tickets[1].ID})
}
