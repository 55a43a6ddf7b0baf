package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/stacklok/connsync/database"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert ledger migrations",
		Long: `Revert ledger migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  connsync migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all job history)
  connsync migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	flags, err := readMigrationFlags(cmd)
	if err != nil {
		return err
	}

	m, target, err := newMigrator(flags.cfg)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if !flags.yes {
		prompt := fmt.Sprintf("WARNING: This will migrate %s down ALL steps and remove every job. Continue?", target)
		if flags.numSteps > 0 {
			prompt = fmt.Sprintf("WARNING: This will migrate %s down %d step(s) and may result in data loss. Continue?",
				target, flags.numSteps)
		}
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
			slog.Info("Migration cancelled")
			return fmt.Errorf("migration cancelled by user")
		}
	}

	if err := executeMigrateDown(m, flags.numSteps); err != nil {
		return err
	}

	displayMigrationVersion(m)
	return nil
}

func executeMigrateDown(m database.Migrator, numSteps int) error {
	if numSteps > 0 {
		slog.Info("Migrating down", "num_steps", numSteps)
		return database.MigrateDown(m, numSteps)
	}

	slog.Warn("Migrating down all steps; this removes the whole schema")
	if err := m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No migrations to revert; the schema is already at the oldest version")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("Migration completed successfully")
	return nil
}
