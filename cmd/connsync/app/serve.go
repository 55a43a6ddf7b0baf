package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	connsync "github.com/stacklok/connsync/internal/app"
	"github.com/stacklok/connsync/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and its API server",
		Long: `Start one state machine per configured connection and serve the control API.

The configuration file (--config) defines:
- the ledger storage (database, sqlite or memory)
- scheduler retry and auto-disable thresholds
- notification sinks and telemetry
- the connections with their schedule, source and destination

Every flag can also be set through CONNSYNC_<FLAG> environment variables.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().String("data-dir", "", "Directory for control state (overrides dataDir from the config)")
	cmd.Flags().Bool("migrate", false, "Apply pending database migrations before starting")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := bindFlags(cmd.Flags())
	if err != nil {
		return err
	}

	configPath := v.GetString("config")
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"storage_type", cfg.GetStorageType(),
		"connection_count", len(cfg.Connections))

	opts := []connsync.ConnSyncAppOptions{
		connsync.WithConfig(cfg),
		connsync.WithAddress(v.GetString("address")),
		connsync.WithMigrations(v.GetBool("migrate")),
	}
	if dir := v.GetString("data-dir"); dir != "" {
		opts = append(opts, connsync.WithDataDirectory(dir))
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := connsync.NewConnSyncApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = app.Stop(defaultGracefulTimeout)
			return err
		}
	}

	return app.Stop(defaultGracefulTimeout)
}

// commandContext returns the command context, which is nil when a command runs outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
