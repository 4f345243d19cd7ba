package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/roles"
	"github.com/flashy-edu/flashy/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load roles and bootstrap accounts from a YAML file",
	Long: `Load the role catalogue and bootstrap accounts from a YAML file.
Existing accounts keep their password and only gain missing roles, so the
command can be re-run safely.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := seed.LoadFile(seedFile)
		if err != nil {
			return fmt.Errorf("failed to read seed file: %w", err)
		}
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		log := logger()
		seeder := &seed.Seeder{
			Roles:        roles.NewService(roles.NewRepository(pool), nil, log),
			Accounts:     auth.NewRepository(pool),
			Assignments:  rbac.NewPGStore(pool),
			PasswordCost: settings.PasswordCost,
			Logger:       log,
		}
		report, err := seeder.Apply(cmd.Context(), file)
		if err != nil {
			return fmt.Errorf("failed to seed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d roles, created %d users, updated %d existing users\n",
			report.RolesEnsured, report.UsersCreated, report.UsersExisting)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "deploy/seed/flashy.yaml", "Seed file")
}
