package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dokkuadmin/banflow/internal/lock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobName = "reconcile"

// SchedulerOptions configures the periodic reconciliation job.
type SchedulerOptions struct {
	Schedule string // Cron spec, e.g. "@every 10m"
	Heal     bool
	LockTTL  time.Duration
}

// Scheduler runs the Reconciler on a cron schedule. Only one instance across
// all workers runs a pass at a time.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	locker     lock.Locker
	opts       SchedulerOptions
	logger     *zap.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(reconciler *Reconciler, locker lock.Locker, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}

	logger = logger.Named("reconcile_scheduler")
	cronLog := &cronLogger{logger: logger.Sugar()}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		reconciler: reconciler,
		locker:     locker,
		opts:       opts,
		logger:     logger,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.opts.Schedule, s.runJob); err != nil {
		return fmt.Errorf("failed to register reconcile job %q: %w", s.opts.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Reconcile scheduler started",
		zap.String("schedule", s.opts.Schedule),
		zap.Bool("heal", s.opts.Heal))

	return nil
}

// Stop waits for a running pass to finish and stops the cron loop.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Reconcile scheduler stopped")
}

// RunOnce runs a single pass under the job lock. Returns lock.ErrLockHeld
// when another worker is already running one.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	release, err := s.locker.Acquire(ctx, []string{lock.JobKey(jobName)}, s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	return s.reconciler.Run(ctx, s.opts.Heal)
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.LockTTL)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			s.logger.Debug("Reconcile pass already running on another worker, skipping")
			return
		}
		s.logger.Error("Reconcile pass failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
