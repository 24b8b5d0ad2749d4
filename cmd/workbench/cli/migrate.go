package cli

import (
	"github.com/spf13/cobra"

	"github.com/rpattn/workbench/internal/db"
)

func newMigrateCommand(a *app) *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema for filter storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if down > 0 {
				return db.RollbackMigrations(a.cfg.Database, down, a.logger)
			}
			return db.RunMigrations(a.cfg.Database, a.logger)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead")
	return cmd
}
