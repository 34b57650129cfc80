package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dokkuadmin/banflow/internal/database"
	"github.com/dokkuadmin/banflow/internal/database/migrations"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/dokkuadmin/banflow/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	ErrNameRequired = errors.New("NAME argument required")
	ErrUnknownStore = errors.New("unknown store")
	ErrRootNotSet   = errors.New("moderation.root_actor_id is not configured")
)

const (
	storeLegacy     = "legacy"
	storeModeration = "moderation"
)

// goTemplate is the skeleton of a new migration. %s is the package name and
// the second placeholder the collection it registers into.
const goTemplate = `package %%s

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	%s.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		return nil
	})
}
`

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	app := &cli.Command{
		Name:  "db",
		Usage: "Database management tool for the legacy and moderation stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"s"},
				Value:   storeModeration,
				Usage:   "Store to operate on (legacy, moderation)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize migration tables",
				Action: withMigrator(cfg, logger, func(ctx context.Context, _ *cli.Command, m *migrate.Migrator) error {
					return m.Init(ctx)
				}),
			},
			{
				Name:  "migrate",
				Usage: "Run pending migrations",
				Action: withMigrator(cfg, logger, func(ctx context.Context, _ *cli.Command, m *migrate.Migrator) error {
					if err := m.Init(ctx); err != nil {
						return err
					}
					if err := m.Lock(ctx); err != nil {
						return err
					}
					defer m.Unlock(ctx) //nolint:errcheck

					group, err := m.Migrate(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No new migrations to run (database is up to date)")
						return nil
					}

					logger.Info("Successfully migrated", zap.String("group", group.String()))
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "Rollback the last migration group",
				Action: withMigrator(cfg, logger, func(ctx context.Context, _ *cli.Command, m *migrate.Migrator) error {
					if err := m.Lock(ctx); err != nil {
						return err
					}
					defer m.Unlock(ctx) //nolint:errcheck

					group, err := m.Rollback(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No groups to roll back")
						return nil
					}

					logger.Info("Successfully rolled back", zap.String("group", group.String()))
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "Show migration status",
				Action: withMigrator(cfg, logger, func(ctx context.Context, _ *cli.Command, m *migrate.Migrator) error {
					ms, err := m.MigrationsWithStatus(ctx)
					if err != nil {
						return err
					}

					logger.Info("Migration status",
						zap.String("migrations", ms.String()),
						zap.String("unapplied", ms.Unapplied().String()),
						zap.String("last_group", ms.LastGroup().String()),
					)
					return nil
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a new Go migration file",
				ArgsUsage: "NAME",
				Action: withMigrator(cfg, logger, func(ctx context.Context, c *cli.Command, m *migrate.Migrator) error {
					if c.Args().Len() != 1 {
						return ErrNameRequired
					}

					collection := "Moderation"
					if c.String("store") == storeLegacy {
						collection = "Legacy"
					}

					mf, err := m.CreateGoMigration(ctx, c.Args().First(),
						migrate.WithGoTemplate(fmt.Sprintf(goTemplate, collection)))
					if err != nil {
						return err
					}

					logger.Info("Created Go migration",
						zap.String("name", mf.Name),
						zap.String("path", mf.Path),
					)
					return nil
				}),
			},
			{
				Name:  "seed-root",
				Usage: "Create the root SUPERMASTER account named in the config",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return seedRoot(ctx, cfg, logger)
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

type migratorAction func(ctx context.Context, c *cli.Command, m *migrate.Migrator) error

// withMigrator opens the store selected by --store for the duration of one
// command.
func withMigrator(cfg *config.Config, logger *zap.Logger, action migratorAction) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		db, collection, err := openStore(cfg, c.String("store"), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		return action(ctx, c, migrate.NewMigrator(db, collection))
	}
}

func openStore(cfg *config.Config, store string, logger *zap.Logger) (*bun.DB, *migrate.Migrations, error) {
	switch store {
	case storeLegacy:
		return database.Open(&cfg.Common.LegacyDB, storeLegacy, logger), migrations.Legacy, nil
	case storeModeration:
		return database.Open(&cfg.Common.ModerationDB, storeModeration, logger), migrations.Moderation, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}
}

// seedRoot inserts the root account. An existing account is left unchanged.
func seedRoot(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	mod := cfg.Common.Moderation
	if mod.RootActorID == "" {
		return ErrRootNotSet
	}

	name := mod.RootActorName
	if name == "" {
		name = mod.RootActorID
	}

	db := database.Open(&cfg.Common.ModerationDB, storeModeration, logger)
	client := database.NewModerationClient(db, logger)
	defer client.Close()

	created, err := client.Actors().Create(ctx, &types.Actor{
		ID:   mod.RootActorID,
		Name: name,
		Role: enum.RoleSuperMaster,
	})
	if err != nil {
		return err
	}

	if !created {
		logger.Info("Root account already exists", zap.String("id", mod.RootActorID))
		return nil
	}

	logger.Info("Created root account", zap.String("id", mod.RootActorID), zap.String("name", name))
	return nil
}
