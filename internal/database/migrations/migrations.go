package migrations

import "github.com/uptrace/bun/migrate"

// Legacy holds migrations for the game-state store. In production the game
// server owns that schema; these migrations create a compatible schema for
// development and staging databases.
var Legacy = migrate.NewMigrations() //nolint:gochecknoglobals // -

// Moderation holds migrations for the moderation metadata store.
var Moderation = migrate.NewMigrations() //nolint:gochecknoglobals // -
