package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/connsync/database"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending ledger migrations",
		Long: `Apply pending ledger migrations to bring the schema up to date.
The connection parameters are read from the config file. With --num-steps only that many
migrations are applied.`,
		RunE: runMigrateUp,
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	flags, err := readMigrationFlags(cmd)
	if err != nil {
		return err
	}

	m, target, err := newMigrator(flags.cfg)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if !flags.yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Apply migrations to %s?", target)) {
		slog.Info("Migration cancelled by user")
		return nil
	}

	slog.Info("Applying ledger migrations", "target", target, "num_steps", flags.numSteps)
	if flags.numSteps == 0 {
		err = database.MigrateUp(m)
	} else {
		err = m.Steps(flags.numSteps)
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	displayMigrationVersion(m)
	return nil
}
