package cmd

import (
	"github.com/spf13/cobra"

	"github.com/flashy-edu/flashy/internal/platform/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return migration.RunUp(settings.PGDSN, settings.MigrationsDir, logger())
	},
}

func init() {
	migrateUpCmd.Flags().StringVar(&settings.MigrationsDir, "dir", settings.MigrationsDir, "Migrations directory (env MIGRATIONS_DIR)")
	migrateCmd.AddCommand(migrateUpCmd)
}
