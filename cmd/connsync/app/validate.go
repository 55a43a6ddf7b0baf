package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/connsync/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.WithConfigPath(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "✓ Valid configuration")
			_, _ = fmt.Fprintf(out, "  Storage: %s\n", cfg.GetStorageType())
			for i := range cfg.Connections {
				conn := &cfg.Connections[i]
				state := "active"
				if !conn.IsActive() {
					state = "inactive"
				}
				_, _ = fmt.Fprintf(out, "  Connection %s (%s): %s schedule, %s -> %s, %s\n",
					conn.Name, conn.GetID(), conn.Schedule.Type, conn.Source.Type, conn.Destination.Type, state)
			}
			return nil
		},
	}
}
