package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database"
	"github.com/dokkuadmin/banflow/internal/database/dbtest"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/dokkuadmin/banflow/internal/lock"
	"github.com/dokkuadmin/banflow/internal/workflow"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errGatewayDown = errors.New("gateway down")

type gatewayCall struct {
	UserID   int64
	Reason   string
	Duration int
	Action   gateway.Action
	Hwid     *gateway.HwidBanRequest
}

// fakeGateway records calls and optionally fails them.
type fakeGateway struct {
	mu    sync.Mutex
	calls []gatewayCall
	err   error
}

func (g *fakeGateway) Ban(
	_ context.Context, userID int64, reason string, durationHours int, action gateway.Action,
) (*gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, gatewayCall{UserID: userID, Reason: reason, Duration: durationHours, Action: action})
	if g.err != nil {
		return nil, g.err
	}

	ok := true
	return &gateway.Result{Success: &ok, StatusCode: 200}, nil
}

func (g *fakeGateway) UpdateHwidBan(_ context.Context, req gateway.HwidBanRequest) (*gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, gatewayCall{UserID: req.UserID, Reason: req.Reason, Action: req.Action, Hwid: &req})
	if g.err != nil {
		return nil, g.err
	}

	ok := true
	return &gateway.Result{Success: &ok, StatusCode: 200}, nil
}

func (g *fakeGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]gatewayCall(nil), g.calls...)
}

type fixture struct {
	wf         *workflow.Workflow
	legacy     *database.LegacyClient
	moderation *database.ModerationClient
	gateway    *fakeGateway
	locker     *lock.LocalLocker

	staff  *types.Actor
	admin  *types.Actor
	master *types.Actor
	super  *types.Actor
	root   *types.Actor
}

func newFixture(t *testing.T, opts workflow.Options) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)

	gate, err := authz.New("root", logger)
	require.NoError(t, err)

	f := &fixture{
		legacy:     dbtest.NewLegacy(t),
		moderation: dbtest.NewModeration(t),
		gateway:    &fakeGateway{},
		locker:     lock.NewLocalLocker(),
	}

	f.staff = f.addActor(t, "staff-1", "Staff One", enum.RoleStaff)
	f.admin = f.addActor(t, "admin-1", "Admin One", enum.RoleIngameAdmin)
	f.master = f.addActor(t, "master-1", "Master One", enum.RoleMaster)
	f.super = f.addActor(t, "super-1", "Super One", enum.RoleSuperMaster)
	f.root = f.addActor(t, "root", "Root", enum.RoleSuperMaster)

	f.wf = workflow.New(f.legacy, f.moderation, f.gateway, gate, f.locker, opts, logger)

	return f
}

func (f *fixture) addActor(t *testing.T, id, name string, role enum.Role) *types.Actor {
	t.Helper()

	actor := &types.Actor{ID: id, Name: name, Role: role}
	dbtest.InsertActor(t, f.moderation, actor)

	return actor
}

func (f *fixture) addPlayer(t *testing.T, id int64) {
	t.Helper()

	dbtest.InsertPlayer(t, f.legacy, &types.Player{ID: id, Nickname: "player"})
}

// seedReport writes a report directly to the legacy store.
func (f *fixture) seedReport(t *testing.T, report *types.IncidentReport) int64 {
	t.Helper()

	id, err := f.legacy.Reports().CreateWithTx(t.Context(), f.legacy.DB(), report)
	require.NoError(t, err)

	return id
}

// seedTicket files a pending ticket for a report directly in the metadata store.
func (f *fixture) seedTicket(t *testing.T, id string, reportID int64) {
	t.Helper()

	dbtest.InsertTicket(t, f.moderation, &types.BlockTicket{
		ID:           id,
		ReportID:     reportID,
		RegistrantID: f.staff.ID,
		Status:       enum.TicketStatusPending,
		CreatedAt:    time.Now(),
	})
}

func (f *fixture) report(t *testing.T, id int64) *types.IncidentReport {
	t.Helper()

	report, err := f.legacy.Reports().Get(t.Context(), id)
	require.NoError(t, err)

	return report
}

func (f *fixture) player(t *testing.T, id int64) *types.Player {
	t.Helper()

	player, err := f.legacy.Players().Get(t.Context(), id)
	require.NoError(t, err)

	return player
}

func (f *fixture) ticket(t *testing.T, id string) *types.BlockTicket {
	t.Helper()

	tickets, err := f.moderation.Tickets().GetByIDs(t.Context(), []string{id})
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	return tickets[0]
}

func (f *fixture) auditCount(t *testing.T) int {
	t.Helper()

	count, err := f.moderation.Audit().Count(t.Context())
	require.NoError(t, err)

	return count
}

func (f *fixture) reportCount(t *testing.T) int {
	t.Helper()

	var count int
	require.NoError(t, f.legacy.DB().NewRaw("SELECT COUNT(*) FROM incident_reports").Scan(t.Context(), &count))

	return count
}

// breakAudit makes every later metadata write that logs an audit entry fail.
func (f *fixture) breakAudit(t *testing.T) {
	t.Helper()

	_, err := f.moderation.DB().NewDropTable().Model((*types.AuditLog)(nil)).Exec(t.Context())
	require.NoError(t, err)
}

func reportInput(target int64, penalty enum.PenaltyType, hours int) workflow.ReportInput {
	return workflow.ReportInput{
		Report: types.IncidentReport{
			Reason:             "cheating",
			Description:        "aimbot in ranked match",
			IncidentTime:       time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC),
			TargetUserID:       target,
			TargetUserNickname: "suspect",
			ReportingUserID:    7,
			PenaltyType:        penalty,
			BanDurationHours:   hours,
			Admin:              "modA",
		},
	}
}
