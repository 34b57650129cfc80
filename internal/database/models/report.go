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

const reportColumns = `report_id, reason, description, incident_time, target_user_id, target_user_nickname,
	reporting_user_id, reporting_user_nickname, penalty_type, warning_count,
	detention_time_minutes, ban_duration_hours, admin, image`

// ReportModel runs raw SQL against the legacy incident_reports table.
// The legacy schema is owned by the game server, so no ORM mapping is
// relied on for writes.
type ReportModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewReport creates a ReportModel.
func NewReport(db *bun.DB, logger *zap.Logger) *ReportModel {
	return &ReportModel{
		db:     db,
		logger: logger.Named("db_report"),
	}
}

// CreateWithTx inserts a report and returns the generated report_id.
func (m *ReportModel) CreateWithTx(ctx context.Context, tx bun.IDB, report *types.IncidentReport) (int64, error) {
	var id int64

	err := tx.NewRaw(`
		INSERT INTO incident_reports (
			reason, description, incident_time, target_user_id, target_user_nickname,
			reporting_user_id, reporting_user_nickname, penalty_type, warning_count,
			detention_time_minutes, ban_duration_hours, admin, image
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING report_id`,
		report.Reason, report.Description, report.IncidentTime, report.TargetUserID,
		report.TargetUserNickname, report.ReportingUserID, report.ReportingUserNickname,
		report.PenaltyType, report.WarningCount, report.DetentionTimeMinutes,
		report.BanDurationHours, report.Admin, report.Image,
	).Scan(ctx, &id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert incident report: %w", err)
	}

	report.ReportID = id

	return id, nil
}

// UpdateWithTx overwrites every mutable field of an existing report.
// Returns types.ErrReportNotFound when no row has the report's id.
func (m *ReportModel) UpdateWithTx(ctx context.Context, tx bun.IDB, report *types.IncidentReport) error {
	result, err := tx.NewRaw(`
		UPDATE incident_reports SET
			reason = ?, description = ?, incident_time = ?, target_user_id = ?,
			target_user_nickname = ?, reporting_user_id = ?, reporting_user_nickname = ?,
			penalty_type = ?, warning_count = ?, detention_time_minutes = ?,
			ban_duration_hours = ?, admin = ?, image = ?
		WHERE report_id = ?`,
		report.Reason, report.Description, report.IncidentTime, report.TargetUserID,
		report.TargetUserNickname, report.ReportingUserID, report.ReportingUserNickname,
		report.PenaltyType, report.WarningCount, report.DetentionTimeMinutes,
		report.BanDurationHours, report.Admin, report.Image, report.ReportID,
	).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update incident report: %w", err)
	}

	return requireAffected(result, types.ErrReportNotFound)
}

// SetBanDurationWithTx changes only the ban duration of a report.
func (m *ReportModel) SetBanDurationWithTx(ctx context.Context, tx bun.IDB, reportID int64, hours int) error {
	result, err := tx.NewRaw(
		"UPDATE incident_reports SET ban_duration_hours = ? WHERE report_id = ?",
		hours, reportID,
	).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set ban duration: %w", err)
	}

	return requireAffected(result, types.ErrReportNotFound)
}

// Delete removes a report permanently.
func (m *ReportModel) Delete(ctx context.Context, reportID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		result, err := m.db.NewRaw("DELETE FROM incident_reports WHERE report_id = ?", reportID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete incident report: %w", err)
		}

		return requireAffected(result, types.ErrReportNotFound)
	})
}

// Get fetches a single report.
func (m *ReportModel) Get(ctx context.Context, reportID int64) (*types.IncidentReport, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.IncidentReport, error) {
		var report types.IncidentReport

		err := m.db.NewRaw(
			"SELECT "+reportColumns+" FROM incident_reports WHERE report_id = ?", reportID,
		).Scan(ctx, &report)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrReportNotFound
			}
			return nil, fmt.Errorf("failed to get incident report: %w", err)
		}

		return &report, nil
	})
}

// GetByIDs fetches reports with a single IN-list query.
// Missing ids are absent from the returned map.
func (m *ReportModel) GetByIDs(ctx context.Context, reportIDs []int64) (map[int64]*types.IncidentReport, error) {
	if len(reportIDs) == 0 {
		return map[int64]*types.IncidentReport{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.IncidentReport, error) {
		var reports []*types.IncidentReport

		err := m.db.NewRaw(
			"SELECT "+reportColumns+" FROM incident_reports WHERE report_id IN (?)", bun.In(reportIDs),
		).Scan(ctx, &reports)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get incident reports: %w", err)
		}

		result := make(map[int64]*types.IncidentReport, len(reports))
		for _, report := range reports {
			result[report.ReportID] = report
		}

		return result, nil
	})
}

// requireAffected turns a zero-row write into notFound.
func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return notFound
	}

	return nil
}
