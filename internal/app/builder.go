package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/flock"

	"github.com/stacklok/connsync/internal/api"
	"github.com/stacklok/connsync/internal/autodisable"
	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/connection"
	"github.com/stacklok/connsync/internal/connectors"
	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/notify"
	"github.com/stacklok/connsync/internal/status"
	"github.com/stacklok/connsync/internal/telemetry"
	"github.com/stacklok/connsync/internal/versions"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	lockFileName        = "connsync.lock"
	controlStateDirName = "connections"
)

// ConnSyncAppOptions is a function that configures the application builder
type ConnSyncAppOptions func(*connSyncAppConfig) error

// connSyncAppConfig collects the builder settings.
// Component overrides are mostly used by tests; production code lets the builder create them.
type connSyncAppConfig struct {
	config *config.Config

	// Optional component overrides
	clock     clock.Clock
	ledger    ledger.Ledger
	states    status.StatePersistence
	notifier  notify.Notifier
	telemetry *telemetry.Telemetry

	// migrate applies pending database migrations before the ledger opens
	migrate bool

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// dataDir overrides config.DataDir
	dataDir string
}

func baseConfig(opts ...ConnSyncAppOptions) (*connSyncAppConfig, error) {
	cfg := &connSyncAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.dataDir == "" {
		cfg.dataDir = cfg.config.GetDataDir()
	}
	if cfg.clock == nil {
		cfg.clock = clock.New()
	}

	return cfg, nil
}

// NewConnSyncApp builds every component from the configuration: the ledger, control state
// persistence, notification sinks, auto-disable policy, connectors, telemetry, the connection
// supervisor and the HTTP server.
func NewConnSyncApp(
	ctx context.Context,
	opts ...ConnSyncAppOptions,
) (*ConnSyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components := &AppComponents{}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = components.close(ctx)
		}
	}()

	if err := buildStorageComponents(ctx, cfg, components); err != nil {
		return nil, fmt.Errorf("failed to build storage components: %w", err)
	}

	if err := buildSupervisor(ctx, cfg, components); err != nil {
		return nil, fmt.Errorf("failed to build connection supervisor: %w", err)
	}

	supervising := &atomic.Bool{}
	httpServer, err := buildHTTPServer(cfg, components, supervising)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &ConnSyncApp{
		config:      cfg.config,
		components:  components,
		httpServer:  httpServer,
		supervising: supervising,
		ctx:         appCtx,
		cancelFunc:  cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithDataDirectory overrides the directory holding the control state and the lock file
func WithDataDirectory(dir string) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		if dir == "" {
			return fmt.Errorf("data directory cannot be empty")
		}
		cfg.dataDir = dir
		return nil
	}
}

// WithMigrations applies pending database migrations when the ledger is opened
func WithMigrations(migrate bool) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.migrate = migrate
		return nil
	}
}

// WithClock replaces the wall clock (for testing)
func WithClock(c clock.Clock) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.clock = c
		return nil
	}
}

// WithLedger allows injecting a ledger instead of opening the configured storage
func WithLedger(l ledger.Ledger) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.ledger = l
		return nil
	}
}

// WithStatePersistence allows injecting the control state store. No data directory lock is
// taken in that case.
func WithStatePersistence(s status.StatePersistence) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.states = s
		return nil
	}
}

// WithNotifier replaces the configured notification sinks
func WithNotifier(n notify.Notifier) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.notifier = n
		return nil
	}
}

// WithTelemetry allows injecting already initialized telemetry
func WithTelemetry(t *telemetry.Telemetry) ConnSyncAppOptions {
	return func(cfg *connSyncAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildStorageComponents opens the telemetry providers, the ledger and the control state store
func buildStorageComponents(ctx context.Context, b *connSyncAppConfig, c *AppComponents) error {
	slog.Info("Initializing storage components", "storage_type", b.config.GetStorageType())

	if b.telemetry == nil {
		tel, err := telemetry.New(ctx,
			telemetry.WithTelemetryConfig(b.config.Telemetry),
			telemetry.WithServiceVersion(versions.Version),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		b.telemetry = tel
	}
	c.Telemetry = b.telemetry

	if b.states == nil {
		lock, err := lockDataDir(b.dataDir)
		if err != nil {
			return err
		}
		c.dataDirLock = lock
		b.states = status.NewFileStatePersistence(filepath.Join(b.dataDir, controlStateDirName))
	}

	if b.ledger == nil {
		l, err := ledger.New(ctx, b.config, b.clock, b.migrate,
			ledger.WithTracer(b.telemetry.Tracer(ledger.TracerName)))
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		b.ledger = l
	}
	c.Ledger = b.ledger

	slog.Info("Storage components initialized successfully")
	return nil
}

// lockDataDir takes an exclusive lock on the data directory
func lockDataDir(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is locked by another connsync process", dir)
	}
	return lock, nil
}

// buildNotifier logs every notification and also pushes it to Redis when configured
func buildNotifier(ctx context.Context, b *connSyncAppConfig) (notify.Notifier, []io.Closer, error) {
	if b.notifier != nil {
		return b.notifier, nil, nil
	}

	notifiers := notify.Multi{notify.LogNotifier{}}
	if b.config.Notifications == nil || b.config.Notifications.Redis == nil {
		return notifiers, nil, nil
	}

	redisCfg := b.config.Notifications.Redis
	client, err := notify.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Redis notifications enabled", "address", redisCfg.Address, "list_key", redisCfg.GetListKey())
	notifiers = append(notifiers, notify.NewRedisNotifier(client, redisCfg.GetListKey(), b.clock))
	return notifiers, []io.Closer{client}, nil
}

// buildSupervisor wires the policy, the connectors and one state machine per connection
func buildSupervisor(ctx context.Context, b *connSyncAppConfig, c *AppComponents) error {
	slog.Info("Initializing connection supervisor")

	metrics, err := telemetry.NewJobMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create job metrics: %w", err)
	}

	notifier, closers, err := buildNotifier(ctx, b)
	if err != nil {
		return fmt.Errorf("failed to build notifier: %w", err)
	}
	c.closers = append(c.closers, closers...)

	scheduler := b.config.GetScheduler()
	policy := autodisable.New(c.Ledger, notifier, autodisable.Thresholds{
		MaxConsecutiveFailures: scheduler.GetMaxFailedJobsInARowBeforeDisable(),
		MaxDaysOnlyFailures:    scheduler.GetMaxDaysOfOnlyFailedJobsBeforeDisable(),
	}, autodisable.WithMetrics(metrics), autodisable.WithClock(b.clock))

	defs := make([]connection.Definition, 0, len(b.config.Connections))
	for i := range b.config.Connections {
		defs = append(defs, connection.DefinitionFromConfig(&b.config.Connections[i]))
	}

	registry := connectors.NewRegistry(b.config.GetReplication().GetBufferByteThreshold(),
		connectors.WithClock(b.clock))
	c.Supervisor = connection.NewSupervisor(defs, connection.Dependencies{
		Ledger:     c.Ledger,
		States:     b.states,
		Policy:     policy,
		Connectors: registry,
		Clock:      b.clock,
		Metrics:    metrics,
		Tracer:     c.Telemetry.Tracer(connection.TracerName),
	}, connection.SettingsFromConfig(b.config))

	slog.Info("Connection supervisor initialized", "connection_count", len(defs))
	return nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *connSyncAppConfig, c *AppComponents, supervising *atomic.Bool) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing go first so they also see requests rejected further down the chain
	metricsMiddleware, err := telemetry.MetricsMiddleware(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	b.middlewares = append([]func(http.Handler) http.Handler{
		metricsMiddleware,
		telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
	}, b.middlewares...)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithReadinessCheck(func(context.Context) error {
			if !supervising.Load() {
				return errors.New("connection supervisor is not running")
			}
			return nil
		}),
	}
	if h := c.Telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
	}
	router := api.NewServer(c.Supervisor, c.Ledger, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
