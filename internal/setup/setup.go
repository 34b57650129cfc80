package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database"
	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/migrations"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/dokkuadmin/banflow/internal/locale"
	"github.com/dokkuadmin/banflow/internal/lock"
	"github.com/dokkuadmin/banflow/internal/redis"
	"github.com/dokkuadmin/banflow/internal/setup/config"
	"github.com/dokkuadmin/banflow/internal/setup/telemetry"
	"github.com/dokkuadmin/banflow/internal/workflow"
	"github.com/getsentry/sentry-go"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// Version is stamped at build time.
var Version = "dev" //nolint:gochecknoglobals // -

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DBLogger     *zap.Logger
	Legacy       *database.LegacyClient
	Moderation   *database.ModerationClient
	RedisManager *redis.Manager
	Locker       lock.Locker
	Gateway      *gateway.Client
	Gate         *authz.Gate
	Workflow     *workflow.Workflow
	Localizer    *locale.Localizer
	LogManager   *telemetry.Manager
	tracing      bool
}

// InitializeApp bootstraps every dependency in order. Both stores must be
// fully migrated; pending migrations are reported, not applied.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Error reporting first so that setup failures are captured
	if cfg.Common.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Common.Sentry.DSN,
			Environment:      cfg.Common.Sentry.Environment,
			Release:          "banflow@" + Version,
			AttachStacktrace: true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	tracing := cfg.Common.Uptrace.DSN != ""
	if tracing {
		uptrace.ConfigureOpentelemetry(
			uptrace.WithDSN(cfg.Common.Uptrace.DSN),
			uptrace.WithServiceName("banflow-"+serviceType.String()),
			uptrace.WithServiceVersion(Version),
		)
	}

	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	retry := cfg.Common.Retry
	dbretry.Configure(retry.MaxRetries,
		time.Duration(retry.Delay)*time.Millisecond,
		time.Duration(retry.MaxDelay)*time.Millisecond)

	legacyDB := database.Open(&cfg.Common.LegacyDB, "legacy", dbLogger)
	if err := database.Migrate(ctx, legacyDB, migrations.Legacy, false, logger); err != nil {
		_ = legacyDB.Close()
		return nil, fmt.Errorf("legacy store: %w", err)
	}

	moderationDB := database.Open(&cfg.Common.ModerationDB, "moderation", dbLogger)
	if err := database.Migrate(ctx, moderationDB, migrations.Moderation, false, logger); err != nil {
		_ = legacyDB.Close()
		_ = moderationDB.Close()
		return nil, fmt.Errorf("moderation store: %w", err)
	}

	legacy := database.NewLegacyClient(legacyDB, dbLogger)
	moderation := database.NewModerationClient(moderationDB, dbLogger)

	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	locker, err := NewLocker(redisManager, logger)
	if err != nil {
		return nil, err
	}

	gate, err := authz.New(cfg.Common.Moderation.RootActorID, logger)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(&cfg.Common.Gateway, logger)

	wf := workflow.New(legacy, moderation, gw, gate, locker, workflow.Options{
		NotifyGatewayOnApproval: cfg.Common.Moderation.NotifyGatewayOnApproval,
		TicketLockTTL:           time.Duration(cfg.Common.Moderation.TicketLockTTL) * time.Millisecond,
	}, logger)

	logger.Info("Application initialized",
		zap.String("service", serviceType.String()),
		zap.String("version", Version),
		zap.Bool("redis", redisManager.Enabled()),
		zap.Bool("tracing", tracing))

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger,
		Legacy:       legacy,
		Moderation:   moderation,
		RedisManager: redisManager,
		Locker:       locker,
		Gateway:      gw,
		Gate:         gate,
		Workflow:     wf,
		Localizer:    locale.New(cfg.Common.Moderation.Locale),
		LogManager:   logManager,
		tracing:      tracing,
	}, nil
}

// NewLocker returns a Redis-backed locker when Redis is configured and an
// in-process one otherwise. The in-process locker only protects a single
// dashboard instance.
func NewLocker(manager *redis.Manager, logger *zap.Logger) (lock.Locker, error) {
	if !manager.Enabled() {
		logger.Warn("Redis is not configured, ticket locks are local to this process")
		return lock.NewLocalLocker(), nil
	}

	client, err := manager.GetClient(redis.LockDBIndex)
	if err != nil {
		return nil, err
	}

	return lock.NewRedisLocker(client, logger), nil
}

// Cleanup shuts components down in reverse initialization order. Errors are
// logged so every component gets a chance to close.
func (s *App) Cleanup(ctx context.Context) {
	var errs []error

	if err := s.Legacy.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Moderation.Close(); err != nil {
		errs = append(errs, err)
	}

	// Redis last among the stores since locks may be released during shutdown
	s.RedisManager.Close()

	if s.tracing {
		if err := uptrace.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
		}
	}

	sentry.Flush(2 * time.Second)

	if err := errors.Join(errs...); err != nil {
		s.Logger.Error("Errors during cleanup", zap.Error(err))
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	if err := s.LogManager.Close(); err != nil {
		log.Printf("Failed to close log files: %v", err)
	}
}
