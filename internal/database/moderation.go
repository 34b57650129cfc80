package database

import (
	"context"

	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ModerationClient is the adapter for the moderation metadata store that
// holds block tickets, the audit log and dashboard accounts.
type ModerationClient struct {
	db      *bun.DB
	logger  *zap.Logger
	tickets *models.TicketModel
	audit   *models.AuditModel
	actors  *models.ActorModel
}

// NewModerationClient wraps an open connection to the metadata store.
func NewModerationClient(db *bun.DB, logger *zap.Logger) *ModerationClient {
	return &ModerationClient{
		db:      db,
		logger:  logger.Named("moderation_store"),
		tickets: models.NewTicket(db, logger),
		audit:   models.NewAudit(db, logger),
		actors:  models.NewActor(db, logger),
	}
}

// Tickets returns the block ticket model.
func (c *ModerationClient) Tickets() *models.TicketModel {
	return c.tickets
}

// Audit returns the audit log model.
func (c *ModerationClient) Audit() *models.AuditModel {
	return c.audit
}

// Actors returns the account model.
func (c *ModerationClient) Actors() *models.ActorModel {
	return c.actors
}

// RunInTx runs fn in one metadata transaction.
func (c *ModerationClient) RunInTx(ctx context.Context, fn func(context.Context, bun.Tx) error) error {
	return dbretry.Transaction(ctx, c.db, fn)
}

// DB returns the underlying bun.DB instance.
func (c *ModerationClient) DB() *bun.DB {
	return c.db
}

// Close gracefully shuts down the connection pool.
func (c *ModerationClient) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close moderation store connection", zap.Error(err))
		return err
	}

	c.logger.Info("Moderation store connection closed")

	return nil
}
