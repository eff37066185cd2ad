package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/artist-crawler/internal/app"
	"github.com/JakeFAU/artist-crawler/internal/printer"
)

// newMigrateCmd creates the 'migrate' subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), e.cfg.Database, e.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}
			printer.Success(cmd.OutOrStdout(), "schema ready (%s)", e.cfg.Database.Provider)
			return nil
		},
	}
}
