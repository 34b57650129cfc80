package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dokkuadmin/banflow/internal/setup/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceDB ServiceType = iota
	ServiceWorker
	ServiceDashboard
)

// String returns the component name used for log directories and telemetry.
func (s ServiceType) String() string {
	switch s {
	case ServiceDB:
		return "db"
	case ServiceWorker:
		return "worker"
	case ServiceDashboard:
		return "dashboard"
	default:
		return "unknown"
	}
}

// Manager owns the log files of one program run. Every run writes into its
// own timestamped session directory and old sessions are pruned.
type Manager struct {
	instanceID        string
	componentName     string
	currentSessionDir string
	logDir            string
	level             string
	maxLogsToKeep     int
	maxSizeMB         int
	maxBackups        int
	console           bool
	writers           []*lumberjack.Logger
}

// NewManager creates a new Manager instance.
func NewManager(serviceType ServiceType, logDir string, debugCfg *config.Debug) *Manager {
	level := debugCfg.LogLevel
	if level == "" {
		level = "info"
	}

	maxSize := debugCfg.MaxLogSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}

	return &Manager{
		instanceID:    uuid.New().String(),
		componentName: serviceType.String(),
		logDir:        logDir,
		level:         level,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxSizeMB:     maxSize,
		maxBackups:    debugCfg.MaxLogBackups,
		console:       debugCfg.Console,
	}
}

// GetLoggers initializes the main and database loggers.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := lm.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "main.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "database.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	fields := []zap.Field{
		zap.String("component", lm.componentName),
		zap.String("instanceID", lm.instanceID),
	}

	return mainLogger.With(fields...), dbLogger.With(fields...), nil
}

// GetInstanceID returns the unique identifier of this program run.
func (lm *Manager) GetInstanceID() string {
	return lm.instanceID
}

// GetCurrentSessionDir returns the session directory of this run.
func (lm *Manager) GetCurrentSessionDir() string {
	return lm.currentSessionDir
}

// Close closes every log file opened by the manager.
func (lm *Manager) Close() error {
	var errs []error
	for _, w := range lm.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// setupLogDirectories ensures the base directory exists, prunes old
// sessions and creates the directory for this run.
func (lm *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	name := fmt.Sprintf("%s_%s", time.Now().Format("2006-01-02_15-04-05"), lm.componentName)
	lm.currentSessionDir = filepath.Join(lm.logDir, name)

	if err := os.MkdirAll(lm.currentSessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// initLogger creates a logger writing to a size-rotated file, optionally
// stderr, and forwarding errors to Sentry and OpenTelemetry.
func (lm *Manager) initLogger(path string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(lm.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    lm.maxSizeMB,
		MaxBackups: lm.maxBackups,
	}
	lm.writers = append(lm.writers, writer)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(writer), zapLevel),
		NewSentryCore(zapcore.ErrorLevel),
		NewOtelCore(zapcore.ErrorLevel),
	}

	if lm.console {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapLevel))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// rotateLogSessions removes the oldest session directories so that at most
// maxLogsToKeep remain once the new session is created. Zero keeps all.
func (lm *Manager) rotateLogSessions() error {
	if lm.maxLogsToKeep <= 0 {
		return nil
	}

	sessions, err := filepath.Glob(filepath.Join(lm.logDir, "*"))
	if err != nil {
		return err
	}

	// Leave room for the session about to be created
	excess := len(sessions) - (lm.maxLogsToKeep - 1)
	if excess <= 0 {
		return nil
	}

	type session struct {
		path    string
		modTime time.Time
	}

	entries := make([]session, 0, len(sessions))
	for _, path := range sessions {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		entries = append(entries, session{path: path, modTime: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	for i := 0; i < excess && i < len(entries); i++ {
		if err := os.RemoveAll(entries[i].path); err != nil {
			return err
		}
	}

	return nil
}
