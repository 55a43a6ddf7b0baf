// Package config provides configuration loading and management for the sync scheduler.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/connsync/internal/schedule"
	"github.com/stacklok/connsync/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of every environment variable read by connsync
	EnvPrefix = "CONNSYNC"

	// StorageTypeDatabase stores the ledger in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeSQLite stores the ledger in an embedded SQLite file
	StorageTypeSQLite = "sqlite"

	// StorageTypeMemory keeps the ledger in process memory
	StorageTypeMemory = "memory"
)

// Scheduler defaults
const (
	DefaultSyncJobMaxAttempts                         = 3
	DefaultMaxFailedJobsInARowBeforeDisable           = 100
	DefaultMaxDaysOfOnlyFailedJobsBeforeDisable       = 14
	DefaultSyncJobMaxTimeout                          = 3 * 24 * time.Hour
	DefaultActivityMaxAttempts                        = 5
	DefaultActivityInitialDelay                       = 5 * time.Second
	DefaultSupervisorInterval                         = 30 * time.Second
	DefaultBufferByteThreshold                  int64 = 25 * 1024 * 1024
	DefaultMaxValidationErrorsPerStream               = 10
	DefaultNotificationListKey                        = "connsync:notifications"
	DefaultDataDir                                    = "./data"
)

// connectionNamespace seeds the name-derived connection ids
var connectionNamespace = uuid.MustParse("6f1c6c1e-96a4-4f57-9f83-d0d4c1a9c0de")

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DataDir holds the durable control state of connection state machines
	DataDir string `yaml:"dataDir,omitempty"`

	Storage       *StorageConfig       `yaml:"storage,omitempty"`
	Database      *DatabaseConfig      `yaml:"database,omitempty"`
	SQLite        *SQLiteConfig        `yaml:"sqlite,omitempty"`
	Scheduler     *SchedulerConfig     `yaml:"scheduler,omitempty"`
	Replication   *ReplicationConfig   `yaml:"replication,omitempty"`
	Notifications *NotificationsConfig `yaml:"notifications,omitempty"`
	Telemetry     *telemetry.Config    `yaml:"telemetry,omitempty"`

	Connections []ConnectionConfig `yaml:"connections"`
}

// StorageConfig selects the ledger backend
type StorageConfig struct {
	// Type is one of database, sqlite or memory
	Type string `yaml:"type"`
}

// SQLiteConfig defines the embedded ledger location
type SQLiteConfig struct {
	// Path is the SQLite database file
	Path string `yaml:"path"`
}

// SchedulerConfig holds retry and auto-disable thresholds
type SchedulerConfig struct {
	// SyncJobMaxAttempts bounds the attempts of one job
	SyncJobMaxAttempts int `yaml:"syncJobMaxAttempts,omitempty"`

	// MaxFailedJobsInARowBeforeDisable disables a connection after this many consecutive failed jobs
	MaxFailedJobsInARowBeforeDisable int `yaml:"maxFailedJobsInARowBeforeDisable,omitempty"`

	// MaxDaysOfOnlyFailedJobsBeforeDisable disables a connection that only failed for this many days
	MaxDaysOfOnlyFailedJobsBeforeDisable int `yaml:"maxDaysOfOnlyFailedJobsBeforeDisable,omitempty"`

	// SyncJobMaxTimeout bounds the duration of one attempt (e.g. "72h")
	SyncJobMaxTimeout string `yaml:"syncJobMaxTimeout,omitempty"`

	// ActivityMaxAttempts bounds retries of ledger and scheduling calls before quarantine
	ActivityMaxAttempts int `yaml:"activityMaxAttempts,omitempty"`

	// ActivityInitialDelay is the first backoff delay between activity retries
	ActivityInitialDelay string `yaml:"activityInitialDelay,omitempty"`

	// SupervisorInterval is how often quarantined instances are checked for restart
	SupervisorInterval string `yaml:"supervisorInterval,omitempty"`
}

// ReplicationConfig tunes the replication loop
type ReplicationConfig struct {
	// BufferByteThreshold is the per-stream byte threshold at which destinations flush
	BufferByteThreshold int64 `yaml:"bufferByteThreshold,omitempty"`

	// MaxValidationErrorsPerStream caps the validation error samples kept per stream
	MaxValidationErrorsPerStream int `yaml:"maxValidationErrorsPerStream,omitempty"`
}

// NotificationsConfig configures where warnings and disable notices are sent
type NotificationsConfig struct {
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the Redis notification sink
type RedisConfig struct {
	// Address is host:port of the Redis server
	Address string `yaml:"address"`

	// DB is the Redis logical database
	DB int `yaml:"db,omitempty"`

	// PasswordFile holds the Redis password; CONNSYNC_REDIS_PASSWORD is used otherwise
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// ListKey is the list notifications are pushed to
	ListKey string `yaml:"listKey,omitempty"`
}

// ConnectionConfig defines a single source to destination connection
type ConnectionConfig struct {
	// ID identifies the connection; derived from Name when empty
	ID string `yaml:"id,omitempty"`

	// Name is the human readable connection name
	Name string `yaml:"name"`

	// Status is active or inactive; defaults to active
	Status string `yaml:"status,omitempty"`

	Schedule    schedule.Descriptor `yaml:"schedule"`
	Source      EndpointConfig      `yaml:"source"`
	Destination EndpointConfig      `yaml:"destination"`

	// Streams selects the streams to replicate; all source streams when empty
	Streams []StreamConfig `yaml:"streams,omitempty"`

	// NamespacePrefix is prepended to every stream name written to the destination
	NamespacePrefix string `yaml:"namespacePrefix,omitempty"`

	// Namespace overrides the destination namespace of every stream
	Namespace string `yaml:"namespace,omitempty"`
}

// EndpointConfig selects a connector and passes it its settings
type EndpointConfig struct {
	// Type is the connector type
	Type string `yaml:"type"`

	// Config is passed to the connector untouched
	Config map[string]any `yaml:"config,omitempty"`
}

// StreamConfig selects a stream and its sync mode
type StreamConfig struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace,omitempty"`
	SyncMode  string `yaml:"syncMode,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections in the pool
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of idle connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password from PasswordFile, falling back to
// the CONNSYNC_DATABASE_PASSWORD environment variable.
func (d *DatabaseConfig) GetPassword() (string, error) {
	return readSecret(d.PasswordFile, EnvPrefix+"_DATABASE_PASSWORD", true)
}

// GetConnectionString builds a PostgreSQL connection URL with the password escaped
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// GetPassword returns the Redis password; empty when none is configured
func (r *RedisConfig) GetPassword() (string, error) {
	return readSecret(r.PasswordFile, EnvPrefix+"_REDIS_PASSWORD", false)
}

// GetListKey returns the Redis list key, using the default if not specified
func (r *RedisConfig) GetListKey() string {
	if r.ListKey == "" {
		return DefaultNotificationListKey
	}
	return r.ListKey
}

func readSecret(file, envVar string, required bool) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if value := os.Getenv(envVar); value != "" {
		return value, nil
	}

	if required {
		return "", fmt.Errorf("no password configured: set passwordFile or %s environment variable", envVar)
	}
	return "", nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration document
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStorageType returns the ledger backend, defaulting to database when a database is
// configured and to memory otherwise.
func (c *Config) GetStorageType() string {
	if c.Storage != nil && c.Storage.Type != "" {
		return c.Storage.Type
	}
	if c.Database != nil {
		return StorageTypeDatabase
	}
	return StorageTypeMemory
}

// GetDataDir returns the control state directory
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return DefaultDataDir
	}
	return c.DataDir
}

// GetScheduler returns the scheduler settings, never nil
func (c *Config) GetScheduler() *SchedulerConfig {
	if c.Scheduler == nil {
		return &SchedulerConfig{}
	}
	return c.Scheduler
}

// GetReplication returns the replication settings, never nil
func (c *Config) GetReplication() *ReplicationConfig {
	if c.Replication == nil {
		return &ReplicationConfig{}
	}
	return c.Replication
}

// GetSyncJobMaxAttempts returns the attempt bound, using the default if not specified
func (s *SchedulerConfig) GetSyncJobMaxAttempts() int {
	if s.SyncJobMaxAttempts <= 0 {
		return DefaultSyncJobMaxAttempts
	}
	return s.SyncJobMaxAttempts
}

// GetMaxFailedJobsInARowBeforeDisable returns the consecutive failure threshold
func (s *SchedulerConfig) GetMaxFailedJobsInARowBeforeDisable() int {
	if s.MaxFailedJobsInARowBeforeDisable <= 0 {
		return DefaultMaxFailedJobsInARowBeforeDisable
	}
	return s.MaxFailedJobsInARowBeforeDisable
}

// GetMaxDaysOfOnlyFailedJobsBeforeDisable returns the failure-only days threshold
func (s *SchedulerConfig) GetMaxDaysOfOnlyFailedJobsBeforeDisable() int {
	if s.MaxDaysOfOnlyFailedJobsBeforeDisable <= 0 {
		return DefaultMaxDaysOfOnlyFailedJobsBeforeDisable
	}
	return s.MaxDaysOfOnlyFailedJobsBeforeDisable
}

// GetSyncJobMaxTimeout returns the attempt timeout
func (s *SchedulerConfig) GetSyncJobMaxTimeout() time.Duration {
	return parseDurationOr(s.SyncJobMaxTimeout, DefaultSyncJobMaxTimeout)
}

// GetActivityMaxAttempts returns the activity retry bound
func (s *SchedulerConfig) GetActivityMaxAttempts() int {
	if s.ActivityMaxAttempts <= 0 {
		return DefaultActivityMaxAttempts
	}
	return s.ActivityMaxAttempts
}

// GetActivityInitialDelay returns the first activity retry delay
func (s *SchedulerConfig) GetActivityInitialDelay() time.Duration {
	return parseDurationOr(s.ActivityInitialDelay, DefaultActivityInitialDelay)
}

// GetSupervisorInterval returns how often the supervisor checks instances
func (s *SchedulerConfig) GetSupervisorInterval() time.Duration {
	return parseDurationOr(s.SupervisorInterval, DefaultSupervisorInterval)
}

// GetBufferByteThreshold returns the per-stream destination buffer size
func (r *ReplicationConfig) GetBufferByteThreshold() int64 {
	if r.BufferByteThreshold <= 0 {
		return DefaultBufferByteThreshold
	}
	return r.BufferByteThreshold
}

// GetMaxValidationErrorsPerStream returns the validation sample cap
func (r *ReplicationConfig) GetMaxValidationErrorsPerStream() int {
	if r.MaxValidationErrorsPerStream <= 0 {
		return DefaultMaxValidationErrorsPerStream
	}
	return r.MaxValidationErrorsPerStream
}

// Values are validated on load, so a parse failure here falls back to the default.
func parseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// GetID returns the connection id, deriving a stable UUID from the slugged name when unset
func (c *ConnectionConfig) GetID() string {
	if c.ID != "" {
		return c.ID
	}
	return uuid.NewSHA1(connectionNamespace, []byte(slug.Make(c.Name))).String()
}

// IsActive reports whether the connection should be scheduled
func (c *ConnectionConfig) IsActive() bool {
	return c.Status == "" || c.Status == "active"
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.GetScheduler().validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	if c.Notifications != nil && c.Notifications.Redis != nil && c.Notifications.Redis.Address == "" {
		return fmt.Errorf("notifications.redis.address is required")
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	ids := make(map[string]bool)
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.Name == "" {
			return fmt.Errorf("connection[%d]: name is required", i)
		}

		id := conn.GetID()
		if ids[id] {
			return fmt.Errorf("connection[%d]: duplicate connection id '%s'", i, id)
		}
		ids[id] = true

		if err := conn.validate(i); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.GetStorageType() {
	case StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("database configuration is required when storage type is %s", StorageTypeDatabase)
		}
		if c.Database.Host == "" || c.Database.Database == "" || c.Database.User == "" {
			return fmt.Errorf("database: host, database and user are required")
		}
	case StorageTypeSQLite:
		if c.SQLite == nil || c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when storage type is %s", StorageTypeSQLite)
		}
	case StorageTypeMemory:
	default:
		return fmt.Errorf("unsupported storage type '%s'", c.GetStorageType())
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	for name, value := range map[string]string{
		"syncJobMaxTimeout":    s.SyncJobMaxTimeout,
		"activityInitialDelay": s.ActivityInitialDelay,
		"supervisorInterval":   s.SupervisorInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", name, err)
		}
	}
	return nil
}

func (c *ConnectionConfig) validate(index int) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("connection[%d] (%s): %w", index, c.Name, err)
	}
	return nil
}

// Validate checks a single connection definition
func (c *ConnectionConfig) Validate() error {
	if c.Status != "" && c.Status != "active" && c.Status != "inactive" {
		return fmt.Errorf("status must be active or inactive, got %s", c.Status)
	}

	if err := c.Schedule.Validate(); err != nil {
		return err
	}

	if c.Source.Type == "" {
		return fmt.Errorf("source.type is required")
	}
	if c.Destination.Type == "" {
		return fmt.Errorf("destination.type is required")
	}

	for j, stream := range c.Streams {
		if stream.Name == "" {
			return fmt.Errorf("streams[%d].name is required", j)
		}
		if stream.SyncMode != "" && stream.SyncMode != "incremental" && stream.SyncMode != "full_refresh" {
			return fmt.Errorf("streams[%d].syncMode must be incremental or full_refresh, got %s", j, stream.SyncMode)
		}
	}

	return nil
}
