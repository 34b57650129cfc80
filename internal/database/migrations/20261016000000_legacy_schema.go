package migrations

import (
	"context"

	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Legacy.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return CreateLegacySchema(ctx, db)
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, (*types.IncidentReport)(nil), (*types.Player)(nil))
	})
}
