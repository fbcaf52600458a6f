package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "assetdeskctl",
	Short: "assetdesk administration",
	Long: `assetdeskctl seeds roles, inspects the role store, manages organization
memberships and triggers background jobs against the configured database
and Redis instance. Configuration is read from the same environment
variables as the server.`,
	Example: `  # Create SuperAdmin and the admin account on an empty database
  BOOTSTRAP_ADMIN_PASSWORD=secret assetdeskctl bootstrap

  # Give user 7 access to organization 3
  assetdeskctl access grant --user 7 --org 3`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "rbac", Title: "Access Control Commands:"},
		&cobra.Group{ID: "ops", Title: "Operations Commands:"},
	)

	bootstrapCmd.GroupID = "rbac"
	rolesCmd.GroupID = "rbac"
	accessCmd.GroupID = "rbac"
	jobsCmd.GroupID = "ops"

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(jobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
