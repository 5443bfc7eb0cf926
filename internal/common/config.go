package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Ingestion   IngestionConfig `toml:"ingestion"`
	Retention   RetentionConfig `toml:"retention"`
	Executions  ExecutionConfig `toml:"executions"`
	Heartbeat   HeartbeatConfig `toml:"heartbeat"`
	Alerts      AlertConfig     `toml:"alerts"`
	Dashboard   DashboardConfig `toml:"dashboard"`
	Auth        AuthConfig      `toml:"auth"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	System      SystemConfig    `toml:"system"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// IngestionConfig controls the log ingestion pipeline buffer and flush behavior
type IngestionConfig struct {
	MaxBatchSize         int `toml:"max_batch_size"`         // Max entries per ingest batch and per flush (absolute cap 10000)
	MaxQueueSize         int `toml:"max_queue_size"`         // In-memory buffer capacity
	ProcessingIntervalMs int `toml:"processing_interval_ms"` // Flush tick when buffer is below half capacity
	EnqueueDeadlineMs    int `toml:"enqueue_deadline_ms"`    // How long a single ingest waits for buffer space
	FlushWorkers         int `toml:"flush_workers"`          // Number of concurrent flush workers
}

// RetentionConfig controls age-based deletion of stored data
type RetentionConfig struct {
	DefaultDays    int    `toml:"default_days"`     // Info-level log retention
	ErrorDays      int    `toml:"error_days"`       // Warning/Error-level log retention
	CriticalDays   int    `toml:"critical_days"`    // Critical-level log retention
	CleanupTimeUtc string `toml:"cleanup_time_utc"` // Daily run time "HH:MM" (UTC)
	BatchSize      int    `toml:"batch_size"`       // Rows deleted per batch
	BatchPauseMs   int    `toml:"batch_pause_ms"`   // Sleep between deletion batches
}

type ExecutionConfig struct {
	TimeoutCheckIntervalSeconds int `toml:"timeout_check_interval_seconds"` // Stuck-execution sweep cadence
}

type HeartbeatConfig struct {
	TimeoutSeconds       int `toml:"timeout_seconds"`        // Fallback when a server has no interval of its own
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"` // Status classification cadence
}

type AlertConfig struct {
	EvaluationIntervalSeconds int `toml:"evaluation_interval_seconds"`
	DefaultThrottleMinutes    int `toml:"default_throttle_minutes"`
}

type DashboardConfig struct {
	StatsCacheTtlSeconds int `toml:"stats_cache_ttl_seconds"`
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	TokenSecret           string `toml:"token_secret"`             // HMAC secret for access tokens
	AccessTokenTTLMinutes int    `toml:"access_token_ttl_minutes"` // Access token lifetime
	RefreshTokenTTLHours  int    `toml:"refresh_token_ttl_hours"`  // Refresh token lifetime
	LockoutThreshold      int    `toml:"lockout_threshold"`        // Failed logins before lockout
	LockoutMinutes        int    `toml:"lockout_minutes"`          // Lockout duration
	BootstrapAdminUser    string `toml:"bootstrap_admin_user"`     // Seeded admin username (empty = no seeding)
	BootstrapAdminPass    string `toml:"bootstrap_admin_pass"`     // Seeded admin password
}

// WebSocketConfig contains configuration for the real-time fan-out
type WebSocketConfig struct {
	SendBufferSize int `toml:"send_buffer_size"` // Per-subscriber outbound buffer (events)
	// Throttle intervals for high-frequency topics. Map of topic to duration string.
	// Example: {"dashboard-summary": "1s"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

type SystemConfig struct {
	MaintenanceMode bool `toml:"maintenance_mode"` // Reject ingestion (503) while set; heartbeats still accepted
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in vigil.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Ingestion: IngestionConfig{
			MaxBatchSize:         1000,
			MaxQueueSize:         50000,
			ProcessingIntervalMs: 100,
			EnqueueDeadlineMs:    100,
			FlushWorkers:         2,
		},
		Retention: RetentionConfig{
			DefaultDays:    90,
			ErrorDays:      180,
			CriticalDays:   365,
			CleanupTimeUtc: "02:00",
			BatchSize:      10000,
			BatchPauseMs:   100,
		},
		Executions: ExecutionConfig{
			TimeoutCheckIntervalSeconds: 60,
		},
		Heartbeat: HeartbeatConfig{
			TimeoutSeconds:       180,
			SweepIntervalSeconds: 30,
		},
		Alerts: AlertConfig{
			EvaluationIntervalSeconds: 30,
			DefaultThrottleMinutes:    15,
		},
		Dashboard: DashboardConfig{
			StatsCacheTtlSeconds: 30,
		},
		Auth: AuthConfig{
			TokenSecret:           "",
			AccessTokenTTLMinutes: 15,
			RefreshTokenTTLHours:  168,
			LockoutThreshold:      5,
			LockoutMinutes:        15,
			BootstrapAdminUser:    "admin",
			BootstrapAdminPass:    "",
		},
		WebSocket: WebSocketConfig{
			SendBufferSize: 256,
			ThrottleIntervals: map[string]string{
				"dashboard-summary": "1s",
			},
		},
		System: SystemConfig{
			MaintenanceMode: false,
		},
	}
}

// MaxBatchCap is the absolute upper bound for ingest batch sizes regardless of config.
const MaxBatchCap = 10000

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files.
// Later files override earlier files. Priority: CLI flags > Environment variables >
// Last config file > ... > First config file > Defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIGIL_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("VIGIL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VIGIL_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("VIGIL_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("VIGIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VIGIL_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if v := os.Getenv("VIGIL_INGESTION_MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Ingestion.MaxBatchSize = n
		}
	}
	if v := os.Getenv("VIGIL_INGESTION_MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Ingestion.MaxQueueSize = n
		}
	}
	if v := os.Getenv("VIGIL_INGESTION_PROCESSING_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Ingestion.ProcessingIntervalMs = n
		}
	}

	if v := os.Getenv("VIGIL_RETENTION_DEFAULT_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Retention.DefaultDays = n
		}
	}
	if v := os.Getenv("VIGIL_RETENTION_ERROR_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Retention.ErrorDays = n
		}
	}
	if v := os.Getenv("VIGIL_RETENTION_CRITICAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Retention.CriticalDays = n
		}
	}
	if v := os.Getenv("VIGIL_RETENTION_CLEANUP_TIME_UTC"); v != "" {
		config.Retention.CleanupTimeUtc = v
	}

	if v := os.Getenv("VIGIL_HEARTBEAT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Heartbeat.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("VIGIL_ALERT_EVALUATION_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Alerts.EvaluationIntervalSeconds = n
		}
	}
	if v := os.Getenv("VIGIL_ALERT_DEFAULT_THROTTLE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Alerts.DefaultThrottleMinutes = n
		}
	}
	if v := os.Getenv("VIGIL_DASHBOARD_STATS_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Dashboard.StatsCacheTtlSeconds = n
		}
	}

	if secret := os.Getenv("VIGIL_AUTH_TOKEN_SECRET"); secret != "" {
		config.Auth.TokenSecret = secret
	}
	if pass := os.Getenv("VIGIL_AUTH_BOOTSTRAP_ADMIN_PASS"); pass != "" {
		config.Auth.BootstrapAdminPass = pass
	}

	if v := os.Getenv("VIGIL_SYSTEM_MAINTENANCE_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.System.MaintenanceMode = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks cross-field constraints that TOML decoding cannot express
func (c *Config) Validate() error {
	if c.Ingestion.MaxBatchSize <= 0 || c.Ingestion.MaxBatchSize > MaxBatchCap {
		return fmt.Errorf("ingestion.max_batch_size must be in 1..%d, got %d", MaxBatchCap, c.Ingestion.MaxBatchSize)
	}
	if c.Ingestion.MaxQueueSize <= 0 {
		return fmt.Errorf("ingestion.max_queue_size must be positive, got %d", c.Ingestion.MaxQueueSize)
	}
	if c.Ingestion.FlushWorkers <= 0 {
		c.Ingestion.FlushWorkers = 1
	}
	if _, _, err := ParseCleanupTime(c.Retention.CleanupTimeUtc); err != nil {
		return err
	}
	if c.Alerts.DefaultThrottleMinutes < 0 {
		return fmt.Errorf("alerts.default_throttle_minutes must be >= 0, got %d", c.Alerts.DefaultThrottleMinutes)
	}
	return nil
}

// ParseCleanupTime parses an "HH:MM" UTC wall time
func ParseCleanupTime(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid cleanup_time_utc %q: expected HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid cleanup_time_utc %q: bad hour", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid cleanup_time_utc %q: bad minute", value)
	}
	return hour, minute, nil
}

// CleanupCronSpec converts the configured cleanup wall time to a cron expression
func (c *Config) CleanupCronSpec() string {
	hour, minute, err := ParseCleanupTime(c.Retention.CleanupTimeUtc)
	if err != nil {
		// Validated at load; fall back to the documented default
		return "0 2 * * *"
	}
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ProcessingInterval returns the flush tick as a duration
func (c *Config) ProcessingInterval() time.Duration {
	return time.Duration(c.Ingestion.ProcessingIntervalMs) * time.Millisecond
}

// EnqueueDeadline returns how long a single ingest waits for buffer space
func (c *Config) EnqueueDeadline() time.Duration {
	return time.Duration(c.Ingestion.EnqueueDeadlineMs) * time.Millisecond
}

// DeepCloneConfig creates a deep copy of the Config struct.
// Used to prevent mutations of the original config when handing snapshots out.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.WebSocket.ThrottleIntervals) > 0 {
		clone.WebSocket.ThrottleIntervals = make(map[string]string, len(c.WebSocket.ThrottleIntervals))
		for k, v := range c.WebSocket.ThrottleIntervals {
			clone.WebSocket.ThrottleIntervals[k] = v
		}
	}

	return &clone
}
