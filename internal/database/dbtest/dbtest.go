// Package dbtest provides in-memory SQLite stores for tests.
package dbtest

import (
	"database/sql"
	"testing"

	"github.com/dokkuadmin/banflow/internal/database"
	"github.com/dokkuadmin/banflow/internal/database/migrations"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"
)

// NewDB opens a private in-memory SQLite database that is closed when the
// test finishes.
func NewDB(tb testing.TB) *bun.DB {
	tb.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(tb, err)

	// Every connection to :memory: is a separate database, so pin the pool to one
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	database.Instrument(db, "test", zaptest.NewLogger(tb))

	tb.Cleanup(func() { _ = db.Close() })

	return db
}

// NewLegacy returns a legacy store client backed by a fresh schema.
func NewLegacy(tb testing.TB) *database.LegacyClient {
	tb.Helper()

	db := NewDB(tb)
	require.NoError(tb, migrations.CreateLegacySchema(tb.Context(), db))

	return database.NewLegacyClient(db, zaptest.NewLogger(tb))
}

// NewModeration returns a metadata store client backed by a fresh schema.
func NewModeration(tb testing.TB) *database.ModerationClient {
	tb.Helper()

	db := NewDB(tb)
	require.NoError(tb, migrations.CreateModerationSchema(tb.Context(), db))

	return database.NewModerationClient(db, zaptest.NewLogger(tb))
}

// InsertPlayer seeds a player row in the legacy store.
func InsertPlayer(tb testing.TB, legacy *database.LegacyClient, player *types.Player) {
	tb.Helper()

	_, err := legacy.DB().NewInsert().Model(player).Exec(tb.Context())
	require.NoError(tb, err)
}

// InsertActor seeds an account in the metadata store.
func InsertActor(tb testing.TB, moderation *database.ModerationClient, actor *types.Actor) {
	tb.Helper()

	created, err := moderation.Actors().Create(tb.Context(), actor)
	require.NoError(tb, err)
	require.True(tb, created)
}

// InsertTicket seeds a block ticket in the metadata store.
func InsertTicket(tb testing.TB, moderation *database.ModerationClient, ticket *types.BlockTicket) {
	tb.Helper()

	require.NoError(tb, moderation.Tickets().CreateWithTx(tb.Context(), moderation.DB(), ticket))
}
