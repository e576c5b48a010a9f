package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/watzon/tenantcore/internal/auth"
	"github.com/watzon/tenantcore/internal/roles"
	"github.com/watzon/tenantcore/internal/triggers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the platform bootstrap status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			st, err := a.platform.Read(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := printStructured(cmd.OutOrStdout(), st); ok {
				return err
			}

			w := newTable(cmd)
			fmt.Fprintf(w, "STATE\t%s\n", st.CurrentState)
			fmt.Fprintf(w, "PARENT ORG\t%s\n", orDash(st.ParentOrgID))
			fmt.Fprintf(w, "CORE CONTRACTS\t%s\n", orDash(st.CoreContractsImportedForNetwork))
			fmt.Fprintf(w, "OPERATIONAL\t%t\n", st.Operational())
			return w.Flush()
		})
	},
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect the role permission table",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles and their permissions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := rolesTable()
		if err != nil {
			return err
		}

		out := make(map[string][]string)
		for _, role := range table.Roles() {
			out[role] = table.Resolve(role).Slice()
		}
		if ok, err := printStructured(cmd.OutOrStdout(), out); ok {
			return err
		}

		w := newTable(cmd)
		fmt.Fprintln(w, "ROLE\tPERMISSIONS")
		for _, role := range table.Roles() {
			fmt.Fprintf(w, "%s\t%s\n", role, strings.Join(out[role], ", "))
		}
		return w.Flush()
	},
}

var rolesResolveCmd = &cobra.Command{
	Use:   "resolve <role> [permission]",
	Short: "Resolve a role, or check one permission",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := rolesTable()
		if err != nil {
			return err
		}

		if len(args) == 2 {
			granted := table.HasPermission(args[0], args[1])
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %t\n", args[0], args[1], granted)
			return nil
		}

		perms := table.Resolve(args[0]).Slice()
		if ok, err := printStructured(cmd.OutOrStdout(), perms); ok {
			return err
		}
		for _, p := range perms {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Inspect persisted triggers",
}

var triggersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List triggers in evaluation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			defs := a.engine.List()
			if ok, err := printStructured(cmd.OutOrStdout(), defs); ok {
				return err
			}

			w := newTable(cmd)
			fmt.Fprintln(w, "ID\tNAME\tENTITY\tPHASE\tSTATUS\tPRIORITY\tVERSION")
			for _, d := range defs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n", d.ID, d.Name, d.EntityClass, d.Phase, d.Status, d.Priority, d.Version)
			}
			return w.Flush()
		})
	},
}

var triggersStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show execution statistics for a trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			stats, err := a.engine.Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok, err := printStructured(cmd.OutOrStdout(), stats); ok {
				return err
			}
			printStats(cmd, stats)
			return nil
		})
	},
}

var tokenOrg string

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		token, expiresAt, err := auth.NewTokenService(cfg.Auth.JWT).Issue(args[0], tokenOrg)
		if err != nil {
			return err
		}

		if ok, err := printStructured(cmd.OutOrStdout(), map[string]any{"token": token, "expiresAt": expiresAt}); ok {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOrg, "org", "", "Default organization claim")

	rolesCmd.AddCommand(rolesListCmd, rolesResolveCmd)
	triggersCmd.AddCommand(triggersListCmd, triggersStatsCmd)

	rootCmd.AddCommand(statusCmd, rolesCmd, triggersCmd, tokenCmd)
}

func withApp(ctx context.Context, fn func(a *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func rolesTable() (*roles.Table, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return roles.Load(cfg.Resolve(cfg.Roles.Path))
}

func newTable(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
}

func printStats(cmd *cobra.Command, s triggers.Stats) {
	w := newTable(cmd)
	fmt.Fprintf(w, "EXECUTIONS\t%d\n", s.TotalExecutions)
	fmt.Fprintf(w, "SUCCESS RATE\t%.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(w, "AVG DURATION\t%.2fms\n", s.AverageExecutionTime)
	fmt.Fprintf(w, "ERRORS\t%d\n", s.ErrorCount)
	fmt.Fprintf(w, "PEAK PER HOUR\t%d\n", s.PeakExecutionsPerHour)
	last := "-"
	if s.LastExecution != nil {
		last = s.LastExecution.Format("2006-01-02 15:04:05 MST")
	}
	fmt.Fprintf(w, "LAST RUN\t%s\n", last)
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
