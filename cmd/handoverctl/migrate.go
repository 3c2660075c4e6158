package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"handover/internal/database"
	"handover/internal/database/migration"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				for i, name := range migration.StepNames() {
					fmt.Fprintf(cmd.OutOrStdout(), "%02d %s\n", i+1, name)
				}
				return nil
			}

			cfg, log := opts.load()
			db, err := database.NewPostgres(cmd.Context(), cfg.Database, log)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err := migration.EnsureMigrated(cmd.Context(), db, log, cfg.Database.Host); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Print migration steps without connecting")
	return cmd
}
