package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/roles"
	"github.com/flashy-edu/flashy/internal/shared"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect the role catalogue and user assignments",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogue roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		list, err := roles.NewRepository(pool).ListRoles(cmd.Context(), roles.RoleListFilters{SortBy: "name"})
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
		for _, r := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", r.ID, r.Name, r.Description)
		}
		return tw.Flush()
	},
}

var rolesOfCmd = &cobra.Command{
	Use:   "of [user-id]",
	Short: "Show the live roles held by a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		set, err := rbac.NewService(rbac.NewPGStore(pool), logger()).RolesOf(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("failed to read roles: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d: %s\n", userID, formatRoles(set.Names()))
		return nil
	},
}

var rolesAssignCmd = &cobra.Command{
	Use:   "assign [user-id] [role]",
	Short: "Grant a role to a user",
	Long: `Grant a role to a user. Tokens already issued keep their old roles claim;
the change reaches the user on their next refresh.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := rbac.NewService(rbac.NewPGStore(pool), logger()).WithAudit(shared.NewAuditLogger(pool)).AssignRole(cmd.Context(), userID, args[1]); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Assigned role '%s' to user %d\n", rbac.NormalizeRole(args[1]), userID)
		return nil
	},
}

var rolesRemoveCmd = &cobra.Command{
	Use:   "remove [user-id] [role]",
	Short: "Revoke a role from a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := rbac.NewService(rbac.NewPGStore(pool), logger()).WithAudit(shared.NewAuditLogger(pool)).RemoveRole(cmd.Context(), userID, args[1]); err != nil {
			return fmt.Errorf("failed to remove role: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed role '%s' from user %d\n", rbac.NormalizeRole(args[1]), userID)
		return nil
	},
}

func init() {
	rolesCmd.AddCommand(rolesListCmd, rolesOfCmd, rolesAssignCmd, rolesRemoveCmd)
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func formatRoles(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
