// Package authz decides which dashboard actions an account may perform.
//
// Action rights come from a single table mapping each action to the lowest
// role allowed to perform it. The role hierarchy is loaded into a casbin
// enforcer as grouping rules, so a higher role inherits every right of the
// roles below it.
package authz

import (
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"go.uber.org/zap"
)

// ErrPermissionDenied is returned when an actor may not perform an action.
var ErrPermissionDenied = errors.New("permission denied")

// Action is a gated operation.
type Action string

const (
	ActionReportRead     Action = "report.read"
	ActionReportWrite    Action = "report.write"
	ActionBlockRequest   Action = "ticket.request"
	ActionTicketResolve  Action = "ticket.resolve"
	ActionReportDelete   Action = "report.delete"
	ActionPermanentBan   Action = "ban.permanent"
	ActionReleaseBan     Action = "ban.release"
	ActionHardwareBan    Action = "ban.hardware"
	ActionManageAccounts Action = "account.manage"
)

// Policy maps every action to the lowest role allowed to perform it.
var Policy = map[Action]enum.Role{ //nolint:gochecknoglobals // -
	ActionReportRead:     enum.RoleStaff,
	ActionReportWrite:    enum.RoleStaff,
	ActionBlockRequest:   enum.RoleStaff,
	ActionTicketResolve:  enum.RoleIngameAdmin,
	ActionReportDelete:   enum.RoleIngameAdmin,
	ActionPermanentBan:   enum.RoleIngameAdmin,
	ActionReleaseBan:     enum.RoleIngameAdmin,
	ActionHardwareBan:    enum.RoleIngameAdmin,
	ActionManageAccounts: enum.RoleMaster,
}

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// Gate answers authorization questions. It never touches a store.
type Gate struct {
	enforcer *casbin.SyncedEnforcer
	rootID   string
	logger   *zap.Logger
}

// New builds a Gate from Policy. rootID names the single protected
// SUPERMASTER account that only itself may administer.
func New(rootID string, logger *zap.Logger) (*Gate, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	// Each role inherits from the one directly below it
	for i := len(enum.Roles) - 1; i > 0; i-- {
		if _, err := enforcer.AddGroupingPolicy(string(enum.Roles[i]), string(enum.Roles[i-1])); err != nil {
			return nil, fmt.Errorf("failed to add role inheritance: %w", err)
		}
	}

	for action, role := range Policy {
		if _, err := enforcer.AddPolicy(string(role), string(action)); err != nil {
			return nil, fmt.Errorf("failed to add policy for %s: %w", action, err)
		}
	}

	return &Gate{
		enforcer: enforcer,
		rootID:   rootID,
		logger:   logger.Named("authz"),
	}, nil
}

// CanPerform reports whether a role may perform an action.
// Unknown roles and unknown actions are denied.
func (g *Gate) CanPerform(role enum.Role, action Action) bool {
	if !role.IsValid() {
		return false
	}

	allowed, err := g.enforcer.Enforce(string(role), string(action))
	if err != nil {
		g.logger.Error("Failed to evaluate policy",
			zap.String("role", role.String()),
			zap.String("action", string(action)),
			zap.Error(err))
		return false
	}

	return allowed
}

// Require returns ErrPermissionDenied unless the actor may perform action.
func (g *Gate) Require(actor *types.Actor, action Action) error {
	if actor == nil || !g.CanPerform(actor.Role, action) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, action)
	}
	return nil
}

// IsRoot reports whether the account is the protected root.
func (g *Gate) IsRoot(actor *types.Actor) bool {
	return actor != nil && g.rootID != "" && actor.ID == g.rootID
}

// CanManage reports whether actor may change target's role, permissions or
// existence. Only the root may touch the root. Otherwise the target must
// rank strictly below the actor, except that a SUPERMASTER may manage any
// non-root account.
func (g *Gate) CanManage(actor, target *types.Actor) bool {
	if actor == nil || target == nil || !g.CanPerform(actor.Role, ActionManageAccounts) {
		return false
	}

	if g.IsRoot(target) {
		return g.IsRoot(actor)
	}

	// Any SUPERMASTER other than the root is protected from everyone but the root
	if target.Role == enum.RoleSuperMaster && !g.IsRoot(actor) {
		return false
	}

	if actor.Role == enum.RoleSuperMaster {
		return true
	}

	return target.Role.Rank() < actor.Role.Rank()
}

// CanGrant reports whether actor may assign role to another account.
// Nobody but a SUPERMASTER may grant a role above their own.
func (g *Gate) CanGrant(actor *types.Actor, role enum.Role) bool {
	if actor == nil || !role.IsValid() {
		return false
	}

	if actor.Role == enum.RoleSuperMaster {
		return role != enum.RoleSuperMaster || g.IsRoot(actor)
	}

	return role.Rank() < actor.Role.Rank()
}
