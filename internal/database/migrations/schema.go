package migrations

import (
	"context"
	"fmt"

	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/uptrace/bun"
)

// CreateLegacySchema creates the incident_reports and players tables.
func CreateLegacySchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*types.IncidentReport)(nil),
		(*types.Player)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*types.IncidentReport)(nil)).
		Index("idx_incident_reports_target_user").
		Column("target_user_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create report index: %w", err)
	}

	return nil
}

// CreateModerationSchema creates the ticket, audit and account tables.
func CreateModerationSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*types.BlockTicket)(nil),
		(*types.AuditLog)(nil),
		(*types.Actor)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*types.BlockTicket)(nil), "idx_block_tickets_status_created", []string{"status", "created_at"}},
		{(*types.BlockTicket)(nil), "idx_block_tickets_report", []string{"report_id"}},
		{(*types.AuditLog)(nil), "idx_audit_logs_created", []string{"created_at"}},
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}

// dropTables drops the given models in order.
func dropTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table %T: %w", model, err)
		}
	}
	return nil
}
