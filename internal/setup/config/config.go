package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// EnvPrefix is the prefix of environment variables that override config
// values. BANFLOW_COMMON__GATEWAY__KEY sets common.gateway.key.
const EnvPrefix = "BANFLOW_"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig `koanf:"common"`
	Worker WorkerConfig `koanf:"worker"`
}

// CommonConfig contains configuration shared between every service.
type CommonConfig struct {
	// Version of the common config.
	Version      int        `koanf:"version"`
	Debug        Debug      `koanf:"debug"`
	Retry        Retry      `koanf:"retry"`
	LegacyDB     PostgreSQL `koanf:"legacy_db"`
	ModerationDB PostgreSQL `koanf:"moderation_db"`
	Redis        Redis      `koanf:"redis"`
	Gateway      Gateway    `koanf:"gateway"`
	Sentry       Sentry     `koanf:"sentry"`
	Uptrace      Uptrace    `koanf:"uptrace"`
	Moderation   Moderation `koanf:"moderation"`
}

// WorkerConfig contains reconciliation worker configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version   int       `koanf:"version"`
	Reconcile Reconcile `koanf:"reconcile"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum size of a log file in megabytes before it is rotated.
	MaxLogSizeMB int `koanf:"max_log_size_mb"`
	// Maximum rotated files kept per log.
	MaxLogBackups int `koanf:"max_log_backups"`
	// Also write logs to stderr.
	Console bool `koanf:"console"`
}

// Retry contains database retry configuration.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Require TLS.
	TLS bool `koanf:"tls"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname. Empty disables Redis and falls back to in-process locks.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Gateway contains the live game server enforcement API configuration.
type Gateway struct {
	// Base URL of the game server API.
	BaseURL string `koanf:"base_url"`
	// Shared secret sent in the key header.
	Key string `koanf:"key"`
	// Path of the player ban endpoint.
	BanPath string `koanf:"ban_path"`
	// Path of the hardware ban endpoint.
	HwidBanPath string `koanf:"hwid_ban_path"`
	// Per-request timeout in milliseconds.
	Timeout int `koanf:"timeout"`
	// Maximum retries on transient failures.
	MaxRetries uint64 `koanf:"max_retries"`
}

// Sentry contains error reporting configuration.
type Sentry struct {
	// Sentry DSN. Empty disables reporting.
	DSN string `koanf:"dsn"`
	// Environment tag attached to events.
	Environment string `koanf:"environment"`
}

// Uptrace contains tracing configuration.
type Uptrace struct {
	// Uptrace DSN. Empty disables tracing export.
	DSN string `koanf:"dsn"`
}

// Moderation contains workflow rules.
type Moderation struct {
	// Account id of the protected root SUPERMASTER.
	RootActorID string `koanf:"root_actor_id"`
	// Display name used when seeding the root account.
	RootActorName string `koanf:"root_actor_name"`
	// Account id recorded as approver for reconciler repairs.
	SystemActorID string `koanf:"system_actor_id"`
	// Also notify the game server after ticket approval.
	NotifyGatewayOnApproval bool `koanf:"notify_gateway_on_approval"`
	// How long ticket locks are held in milliseconds.
	TicketLockTTL int `koanf:"ticket_lock_ttl"`
	// Language of user-facing messages (ko, en).
	Locale string `koanf:"locale"`
}

// Reconcile contains reconciliation job configuration.
type Reconcile struct {
	// Cron schedule of the job.
	Schedule string `koanf:"schedule"`
	// Repair divergences instead of only reporting them.
	Heal bool `koanf:"heal"`
	// How far back approved tickets are re-checked, in hours.
	LookbackHours int `koanf:"lookback_hours"`
	// Maximum tickets inspected per status per run.
	BatchSize int `koanf:"batch_size"`
	// Maximum concurrent ticket checks.
	Concurrency int `koanf:"concurrency"`
	// Job lock lifetime in milliseconds.
	LockTTL int `koanf:"lock_ttl"`
}

// DefaultPaths lists the directories searched for config files.
func DefaultPaths() []string {
	paths := []string{".banflow"}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, homeDir+"/.banflow/config")
	}

	return append(paths, "/etc/banflow/config", "/app/config", "config", ".")
}

// LoadConfig loads the configuration from the default search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	return LoadConfigFrom(DefaultPaths()...)
}

// LoadConfigFrom loads common.toml and worker.toml from the first path that
// has each, then applies environment overrides.
func LoadConfigFrom(configPaths ...string) (*Config, string, error) {
	k := koanf.New(".")

	var usedConfigPath string

	for _, configName := range []string{"common", "worker"} {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if _, err := os.Stat(configPath); err != nil {
				continue
			}

			sub := koanf.New(".")
			if err := sub.Load(file.Provider(configPath), toml.Parser()); err != nil {
				return nil, "", fmt.Errorf("failed to parse %s: %w", configPath, err)
			}

			if err := k.MergeAt(sub, configName); err != nil {
				return nil, "", fmt.Errorf("failed to merge %s: %w", configPath, err)
			}

			configLoaded = true
			if usedConfigPath == "" {
				usedConfigPath = path
			}

			break
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	// Environment overrides use a double underscore as the path separator
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	config.applyDefaults()

	return &config, usedConfigPath, nil
}

// applyDefaults fills values that have a safe default when left unset.
func (c *Config) applyDefaults() {
	gw := &c.Common.Gateway
	if gw.BanPath == "" {
		gw.BanPath = "/DokkuApi/updateBan"
	}
	if gw.HwidBanPath == "" {
		gw.HwidBanPath = "/DokkuApi/updateHwidBan"
	}
	if gw.Timeout <= 0 {
		gw.Timeout = 5000
	}

	mod := &c.Common.Moderation
	if mod.SystemActorID == "" {
		mod.SystemActorID = "system"
	}
	if mod.TicketLockTTL <= 0 {
		mod.TicketLockTTL = 30000
	}
	if mod.Locale == "" {
		mod.Locale = "ko"
	}

	rec := &c.Worker.Reconcile
	if rec.Schedule == "" {
		rec.Schedule = "@every 10m"
	}
	if rec.LookbackHours <= 0 {
		rec.LookbackHours = 72
	}
	if rec.BatchSize <= 0 {
		rec.BatchSize = 500
	}
	if rec.Concurrency <= 0 {
		rec.Concurrency = 4
	}
	if rec.LockTTL <= 0 {
		rec.LockTTL = 5 * 60 * 1000
	}
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf("%w: %s.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, name, current, expected)
	}

	return nil
}
