package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const playerColumns = "id, nickname, banned, bantime, banreason, banadmin"

// PlayerModel reads and writes ban state on legacy player rows.
type PlayerModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPlayer creates a PlayerModel.
func NewPlayer(db *bun.DB, logger *zap.Logger) *PlayerModel {
	return &PlayerModel{
		db:     db,
		logger: logger.Named("db_player"),
	}
}

// ApplyPermanentBanWithTx marks a player as permanently banned using the
// reason and admin of the enforcing report.
func (m *PlayerModel) ApplyPermanentBanWithTx(
	ctx context.Context, tx bun.IDB, userID int64, reason, admin string,
) error {
	result, err := tx.NewRaw(
		"UPDATE players SET banned = ?, bantime = ?, banreason = ?, banadmin = ? WHERE id = ?",
		true, types.PermanentBanTime, reason, admin, userID,
	).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply permanent ban: %w", err)
	}

	if err := requireAffected(result, types.ErrPlayerNotFound); err != nil {
		return fmt.Errorf("%w (user %d)", err, userID)
	}

	return nil
}

// Get fetches the ban state of one player.
func (m *PlayerModel) Get(ctx context.Context, userID int64) (*types.Player, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Player, error) {
		var player types.Player

		err := m.db.NewRaw("SELECT "+playerColumns+" FROM players WHERE id = ?", userID).Scan(ctx, &player)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrPlayerNotFound
			}
			return nil, fmt.Errorf("failed to get player: %w", err)
		}

		return &player, nil
	})
}

// GetByIDs fetches the ban state of several players with one IN-list query.
func (m *PlayerModel) GetByIDs(ctx context.Context, userIDs []int64) (map[int64]*types.Player, error) {
	if len(userIDs) == 0 {
		return map[int64]*types.Player{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.Player, error) {
		var players []*types.Player

		err := m.db.NewRaw(
			"SELECT "+playerColumns+" FROM players WHERE id IN (?)", bun.In(userIDs),
		).Scan(ctx, &players)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get players: %w", err)
		}

		result := make(map[int64]*types.Player, len(players))
		for _, player := range players {
			result[player.ID] = player
		}

		return result, nil
	})
}
