package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dokkuadmin/banflow/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrMigrationsPending is returned when a store is opened without
// auto-migration and its schema is behind.
var ErrMigrationsPending = errors.New("database has unapplied migrations")

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

func init() {
	bunjson.SetProvider(sonicProvider{})
}

// Open creates a pooled Postgres connection for one of the stores.
// The name is used as the application name and the tracing db name.
func Open(cfg *config.PostgreSQL, name string, logger *zap.Logger) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.DBName),
		pgdriver.WithInsecure(!cfg.TLS),
		pgdriver.WithApplicationName("banflow-"+name),
	))

	// Set connection pool settings
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)
	sqldb.SetConnMaxIdleTime(time.Duration(cfg.MaxIdleTime) * time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New())
	Instrument(db, name, logger)

	return db
}

// Instrument attaches the logging and tracing hooks to a bun DB.
func Instrument(db *bun.DB, name string, logger *zap.Logger) {
	db.AddQueryHook(NewHook(logger.Named("db_" + name)))
	db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(name)))
}

// Migrate applies pending migrations, or reports them when apply is false.
func Migrate(ctx context.Context, db *bun.DB, migrations *migrate.Migrations, apply bool, logger *zap.Logger) error {
	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if !apply {
		ms, err := migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}

		if unapplied := ms.Unapplied(); len(unapplied) > 0 {
			return fmt.Errorf("%w: %s", ErrMigrationsPending, unapplied.String())
		}

		return nil
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !group.IsZero() {
		logger.Info("Automatically ran migrations", zap.String("group", group.String()))
	}

	return nil
}
