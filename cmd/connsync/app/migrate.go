package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/connsync/database"
	"github.com/stacklok/connsync/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Ledger schema migration tool",
		Long: `Ledger schema migration tool for managing schema versions. Use with 'up' or 'down' subcommands.
Both the database and the sqlite storage types are supported.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	return cmd
}

// migrationFlags are the flags shared by the migrate subcommands
type migrationFlags struct {
	yes      bool
	numSteps int
	cfg      *config.Config
}

func readMigrationFlags(cmd *cobra.Command) (*migrationFlags, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return nil, fmt.Errorf("failed to get yes flag: %w", err)
	}
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return nil, fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt32 {
		return nil, fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &migrationFlags{yes: yes, numSteps: int(numSteps), cfg: cfg}, nil // #nosec G115 -- bounded above
}

// newMigrator opens the migration set matching the configured storage
func newMigrator(cfg *config.Config) (database.Migrator, string, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		connString, err := cfg.Database.GetConnectionString()
		if err != nil {
			return nil, "", fmt.Errorf("failed to build connection string: %w", err)
		}
		m, err := database.NewFromConnectionString(connString)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create migrator: %w", err)
		}
		target := fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
		return m, target, nil
	case config.StorageTypeSQLite:
		m, err := database.NewForSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create migrator: %w", err)
		}
		return m, cfg.SQLite.Path, nil
	default:
		return nil, "", fmt.Errorf("storage type %s has no schema to migrate", cfg.GetStorageType())
	}
}

func closeMigrator(m database.Migrator) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		slog.Warn("Failed to close migration source", "error", srcErr)
	}
	if dbErr != nil {
		slog.Warn("Failed to close migration database", "error", dbErr)
	}
}

// confirm asks a yes/no question on the command output and reads the answer from its input
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s (yes/no): ", prompt)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "yes" || answer == "y"
}

func displayMigrationVersion(m database.Migrator) {
	version, dirty, err := m.Version()
	switch {
	case err != nil:
		slog.Info("No migration applied", "reason", err.Error())
	case dirty:
		slog.Warn("Ledger schema is dirty; manual intervention may be required", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
}
