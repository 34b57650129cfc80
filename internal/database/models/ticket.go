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

// TicketModel handles database operations for block tickets.
type TicketModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTicket creates a TicketModel.
func NewTicket(db *bun.DB, logger *zap.Logger) *TicketModel {
	return &TicketModel{
		db:     db,
		logger: logger.Named("db_ticket"),
	}
}

// CreateWithTx inserts a new ticket.
func (m *TicketModel) CreateWithTx(ctx context.Context, tx bun.IDB, ticket *types.BlockTicket) error {
	_, err := tx.NewInsert().Model(ticket).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create block ticket: %w", err)
	}

	return nil
}

// ResolveWithTx moves a single ticket out of PENDING.
//
// The update only matches rows that are still PENDING, so of two concurrent
// resolutions exactly one reports true. A false return means the ticket was
// already resolved or does not exist. approvedAt is only written when the
// ticket is approved.
func (m *TicketModel) ResolveWithTx(
	ctx context.Context, tx bun.IDB, ticketID string, status enum.TicketStatus, approverID string, approvedAt time.Time,
) (bool, error) {
	query := tx.NewUpdate().
		Model((*types.BlockTicket)(nil)).
		Set("status = ?", status).
		Set("approver_id = ?", approverID).
		Where("id = ?", ticketID).
		Where("status = ?", enum.TicketStatusPending)

	if status == enum.TicketStatusApproved {
		query = query.Set("approved_at = ?", approvedAt)
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve block ticket: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

// GetByIDs fetches tickets by id. Missing ids are absent from the result.
func (m *TicketModel) GetByIDs(ctx context.Context, ticketIDs []string) ([]*types.BlockTicket, error) {
	if len(ticketIDs) == 0 {
		return nil, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.BlockTicket, error) {
		var tickets []*types.BlockTicket

		err := m.db.NewSelect().
			Model(&tickets).
			Where("id IN (?)", bun.In(ticketIDs)).
			Order("created_at ASC").
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get block tickets: %w", err)
		}

		return tickets, nil
	})
}

// GetPendingIDs returns the ids of every PENDING ticket, oldest first.
func (m *TicketModel) GetPendingIDs(ctx context.Context) ([]string, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]string, error) {
		var ids []string

		err := m.db.NewSelect().
			Model((*types.BlockTicket)(nil)).
			Column("id").
			Where("status = ?", enum.TicketStatusPending).
			Order("created_at ASC").
			Scan(ctx, &ids)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get pending block tickets: %w", err)
		}

		return ids, nil
	})
}

// GetPendingByReport returns the oldest PENDING ticket for a report, or nil.
func (m *TicketModel) GetPendingByReport(ctx context.Context, reportID int64) (*types.BlockTicket, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.BlockTicket, error) {
		var ticket types.BlockTicket

		err := m.db.NewSelect().
			Model(&ticket).
			Where("report_id = ?", reportID).
			Where("status = ?", enum.TicketStatusPending).
			Order("created_at ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get pending ticket for report: %w", err)
		}

		return &ticket, nil
	})
}

// GetPendingIDsByReportWithTx returns the PENDING ticket ids for a report
// inside an open transaction.
func (m *TicketModel) GetPendingIDsByReportWithTx(ctx context.Context, tx bun.IDB, reportID int64) ([]string, error) {
	var ids []string

	err := tx.NewSelect().
		Model((*types.BlockTicket)(nil)).
		Column("id").
		Where("report_id = ?", reportID).
		Where("status = ?", enum.TicketStatusPending).
		Scan(ctx, &ids)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get pending tickets for report: %w", err)
	}

	return ids, nil
}

// GetByStatus returns tickets with the given status created at or after
// since, oldest first. A zero since or limit disables that bound.
func (m *TicketModel) GetByStatus(
	ctx context.Context, status enum.TicketStatus, since time.Time, limit int,
) ([]*types.BlockTicket, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.BlockTicket, error) {
		var tickets []*types.BlockTicket

		query := m.db.NewSelect().
			Model(&tickets).
			Where("status = ?", status).
			Order("created_at ASC")

		if !since.IsZero() {
			query = query.Where("created_at >= ?", since)
		}
		if limit > 0 {
			query = query.Limit(limit)
		}

		err := query.Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get block tickets by status: %w", err)
		}

		return tickets, nil
	})
}

// GetApprovedSince returns APPROVED tickets approved at or after since,
// oldest approval first. A zero since or limit disables that bound.
func (m *TicketModel) GetApprovedSince(ctx context.Context, since time.Time, limit int) ([]*types.BlockTicket, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.BlockTicket, error) {
		var tickets []*types.BlockTicket

		query := m.db.NewSelect().
			Model(&tickets).
			Where("status = ?", enum.TicketStatusApproved).
			Order("approved_at ASC")

		if !since.IsZero() {
			query = query.Where("approved_at >= ?", since)
		}
		if limit > 0 {
			query = query.Limit(limit)
		}

		err := query.Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get approved block tickets: %w", err)
		}

		return tickets, nil
	})
}
