package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/tenantcore/internal/orgauth"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Manage organization memberships",
	Long: `Manage the memberships that back the checkUserRole procedure.

Examples:
  tenantcore members grant alice acme editor
  tenantcore members set alice acme admin
  tenantcore members list acme
  tenantcore members revoke alice acme editor`,
}

var membersGrantCmd = &cobra.Command{
	Use:   "grant <user-id> <org-id> <role>",
	Short: "Grant a role in an organization",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if !hasRole(a, args[2]) {
				return fmt.Errorf("unknown role %q", args[2])
			}

			err := a.memberships.Grant(cmd.Context(), args[0], args[1], args[2])
			if errors.Is(err, orgauth.ErrMembershipExists) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already has %s in %s\n", args[0], args[2], args[1])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted %s to %s in %s\n", args[2], args[0], args[1])
			return nil
		})
	},
}

var membersSetCmd = &cobra.Command{
	Use:   "set <user-id> <org-id> <role>",
	Short: "Replace a user's roles in an organization with one role",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if !hasRole(a, args[2]) {
				return fmt.Errorf("unknown role %q", args[2])
			}
			if err := a.memberships.SetRole(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s in %s\n", args[0], args[2], args[1])
			return nil
		})
	},
}

var membersRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id> <org-id> <role>",
	Short: "Revoke a role in an organization",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			err := a.memberships.Revoke(cmd.Context(), args[0], args[1], args[2])
			if errors.Is(err, orgauth.ErrMembershipNotFound) {
				return fmt.Errorf("%s does not have %s in %s", args[0], args[2], args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s from %s in %s\n", args[2], args[0], args[1])
			return nil
		})
	},
}

var membersListCmd = &cobra.Command{
	Use:   "list <org-id>",
	Short: "List the members of an organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			members, err := a.memberships.ListByOrganization(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok, err := printStructured(cmd.OutOrStdout(), members); ok {
				return err
			}

			w := newTable(cmd)
			fmt.Fprintln(w, "USER\tROLE\tGRANTED")
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.UserID, m.RoleID, m.GrantedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

func init() {
	membersCmd.AddCommand(membersGrantCmd, membersSetCmd, membersRevokeCmd, membersListCmd)
	rootCmd.AddCommand(membersCmd)
}

func hasRole(a *app, role string) bool {
	for _, r := range a.roles.Roles() {
		if r == role {
			return true
		}
	}
	return false
}
