package database

import (
	"context"

	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// LegacyClient is the adapter for the game-state store that holds incident
// reports and player ban flags.
type LegacyClient struct {
	db      *bun.DB
	logger  *zap.Logger
	reports *models.ReportModel
	players *models.PlayerModel
}

// NewLegacyClient wraps an open connection to the game-state store.
func NewLegacyClient(db *bun.DB, logger *zap.Logger) *LegacyClient {
	return &LegacyClient{
		db:      db,
		logger:  logger.Named("legacy_store"),
		reports: models.NewReport(db, logger),
		players: models.NewPlayer(db, logger),
	}
}

// Reports returns the incident report model.
func (c *LegacyClient) Reports() *models.ReportModel {
	return c.reports
}

// Players returns the player ban-state model.
func (c *LegacyClient) Players() *models.PlayerModel {
	return c.players
}

// RunInTx runs fn in one legacy transaction. The connection is returned to
// the pool on every exit path and any error rolls back every statement.
func (c *LegacyClient) RunInTx(ctx context.Context, fn func(context.Context, bun.Tx) error) error {
	return dbretry.Transaction(ctx, c.db, fn)
}

// DB returns the underlying bun.DB instance.
func (c *LegacyClient) DB() *bun.DB {
	return c.db
}

// Close gracefully shuts down the connection pool.
func (c *LegacyClient) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close legacy store connection", zap.Error(err))
		return err
	}

	c.logger.Info("Legacy store connection closed")

	return nil
}
