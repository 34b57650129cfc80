package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dokkuadmin/banflow/internal/reconcile"
	"github.com/dokkuadmin/banflow/internal/setup"
	"github.com/dokkuadmin/banflow/internal/setup/telemetry"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// WorkerLogDir specifies where worker log files are stored.
const WorkerLogDir = "logs/worker_logs"

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the banflow reconciliation worker",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single reconciliation pass and exit",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "With --once, report divergences without repairing them",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWorker(ctx, c.Bool("once"), c.Bool("dry-run"))
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runWorker starts the reconciliation scheduler, or runs one pass when once
// is set.
func runWorker(ctx context.Context, once, dryRun bool) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	cfg := app.Config.Worker.Reconcile
	lockTTL := time.Duration(cfg.LockTTL) * time.Millisecond

	reconciler := reconcile.New(app.Legacy, app.Moderation, app.Locker, reconcile.Options{
		SystemActorID: app.Config.Common.Moderation.SystemActorID,
		Lookback:      time.Duration(cfg.LookbackHours) * time.Hour,
		BatchSize:     cfg.BatchSize,
		Concurrency:   cfg.Concurrency,
		LockTTL:       lockTTL,
	}, app.Logger)

	scheduler := reconcile.NewScheduler(reconciler, app.Locker, reconcile.SchedulerOptions{
		Schedule: cfg.Schedule,
		Heal:     cfg.Heal && !dryRun,
		LockTTL:  lockTTL,
	}, app.Logger)

	if once {
		result, err := scheduler.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}

		app.Logger.Info("Reconciliation pass finished",
			zap.Int("checked", result.Checked),
			zap.Int("divergences", len(result.Divergences)),
			zap.Int("healed", result.Healed()))
		return nil
	}

	if err := scheduler.Start(); err != nil {
		return err
	}

	app.Logger.Info("Worker started", zap.String("schedule", cfg.Schedule), zap.Bool("heal", cfg.Heal))
	<-ctx.Done()

	app.Logger.Info("Shutdown signal received, stopping worker")
	scheduler.Stop()

	return nil
}
