package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ActorModel handles dashboard accounts and their role assignments.
type ActorModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewActor creates an ActorModel.
func NewActor(db *bun.DB, logger *zap.Logger) *ActorModel {
	return &ActorModel{
		db:     db,
		logger: logger.Named("db_actor"),
	}
}

// Create inserts a new account, leaving an existing one untouched.
// Returns false if the account already existed.
func (m *ActorModel) Create(ctx context.Context, actor *types.Actor) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		now := time.Now()
		if actor.CreatedAt.IsZero() {
			actor.CreatedAt = now
		}
		actor.UpdatedAt = now

		result, err := m.db.NewInsert().
			Model(actor).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to create actor: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, err
		}

		return affected > 0, nil
	})
}

// Get fetches an account by id.
func (m *ActorModel) Get(ctx context.Context, actorID string) (*types.Actor, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Actor, error) {
		var actor types.Actor

		err := m.db.NewSelect().Model(&actor).Where("id = ?", actorID).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrActorNotFound
			}
			return nil, fmt.Errorf("failed to get actor: %w", err)
		}

		return &actor, nil
	})
}

// SetRoleWithTx changes an account's role.
func (m *ActorModel) SetRoleWithTx(ctx context.Context, tx bun.IDB, actorID string, role enum.Role) error {
	result, err := tx.NewUpdate().
		Model((*types.Actor)(nil)).
		Set("role = ?", role).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", actorID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set actor role: %w", err)
	}

	return requireAffected(result, types.ErrActorNotFound)
}

// SetPermissionsWithTx replaces an account's permission flags.
func (m *ActorModel) SetPermissionsWithTx(
	ctx context.Context, tx bun.IDB, actorID string, permissions enum.Permission,
) error {
	result, err := tx.NewUpdate().
		Model((*types.Actor)(nil)).
		Set("permissions = ?", permissions).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", actorID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set actor permissions: %w", err)
	}

	return requireAffected(result, types.ErrActorNotFound)
}

// DeleteWithTx removes an account.
func (m *ActorModel) DeleteWithTx(ctx context.Context, tx bun.IDB, actorID string) error {
	result, err := tx.NewDelete().
		Model((*types.Actor)(nil)).
		Where("id = ?", actorID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete actor: %w", err)
	}

	return requireAffected(result, types.ErrActorNotFound)
}
