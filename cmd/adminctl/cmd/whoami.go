package cmd

import (
	"fmt"

	"github.com/jrsteele09/go-admin-session/guard"
	"github.com/spf13/cobra"
)

var whoamiKeep bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Log in and print the current user",
	Long: `Log in (or restore a session), pass the tenant area guard and print the
profile the identity backend returns for the session.

Examples:
  adminctl whoami --email alice@acme.test --tenant acme
  ADMINCTL_PASSWORD=... adminctl whoami --email admin@localhost`,
	RunE: runWhoami,
}

func init() {
	addLoginFlags(whoamiCmd)
	whoamiCmd.Flags().BoolVar(&whoamiKeep, "keep", false, "keep the session instead of logging out")
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(a, !whoamiKeep)

	if a.TenantGuard.Check(ctx) != guard.DecisionAllowed {
		return fmt.Errorf("not authenticated")
	}
	profile, err := fetchCurrentUser(ctx, a)
	if err != nil {
		return err
	}
	return printJSON(cmd, profile)
}
