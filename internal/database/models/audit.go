package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AuditModel handles the append-only moderation audit log.
type AuditModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAudit creates an AuditModel.
func NewAudit(db *bun.DB, logger *zap.Logger) *AuditModel {
	return &AuditModel{
		db:     db,
		logger: logger.Named("db_audit"),
	}
}

// LogWithTx appends an entry inside the caller's transaction so that the
// entry commits or rolls back with the change it describes.
func (m *AuditModel) LogWithTx(ctx context.Context, tx bun.IDB, registrantID, content string) error {
	entry := &types.AuditLog{
		ID:           uuid.NewString(),
		Content:      content,
		RegistrantID: registrantID,
		CreatedAt:    time.Now(),
	}

	if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	m.logger.Debug("Logged audit entry",
		zap.String("registrantID", registrantID),
		zap.String("content", content))

	return nil
}

// List returns the most recent entries, newest first. An empty
// registrantID matches every actor.
func (m *AuditModel) List(ctx context.Context, registrantID string, limit int) ([]*types.AuditLog, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.AuditLog, error) {
		var logs []*types.AuditLog

		query := m.db.NewSelect().
			Model(&logs).
			Order("created_at DESC")

		if registrantID != "" {
			query = query.Where("registrant_id = ?", registrantID)
		}
		if limit > 0 {
			query = query.Limit(limit)
		}

		if err := query.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to list audit logs: %w", err)
		}

		return logs, nil
	})
}

// Count returns the number of entries in the log.
func (m *AuditModel) Count(ctx context.Context) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().Model((*types.AuditLog)(nil)).Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count audit logs: %w", err)
		}
		return count, nil
	})
}
