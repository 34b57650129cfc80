package migrations

import (
	"context"

	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Moderation.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return CreateModerationSchema(ctx, db)
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, (*types.BlockTicket)(nil), (*types.AuditLog)(nil), (*types.Actor)(nil))
	})
}
