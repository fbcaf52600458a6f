package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/assetdesk/assetdesk/internal/rbac"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed SuperAdmin and the default accounts",
	Long: `Create the SuperAdmin role and the admin account, plus the Reader role
and reader account when BOOTSTRAP_READER_ENABLED is set. Nothing happens
when the role store already holds a role.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer rt.Close()
		b := rbac.Bootstrapper{
			Service:  rt.roles,
			Accounts: rt.users,
			Options:  rt.cfg.BootstrapOptions(),
			Logger:   rt.logger,
		}
		return runBootstrap(cmd.Context(), b, cmd.OutOrStdout())
	},
}

type bootstrapRunner interface {
	Run(ctx context.Context) (rbac.BootstrapResult, error)
}

func runBootstrap(ctx context.Context, b bootstrapRunner, out io.Writer) error {
	res, err := b.Run(ctx)
	if err != nil {
		return err
	}
	if res.Skipped {
		_, _ = fmt.Fprintln(out, "Bootstrap already complete; skipped.")
		return nil
	}
	if res.AdminUserID != 0 {
		_, _ = fmt.Fprintf(out, "Created %s (id %d) for admin user %d\n", rbac.SuperAdminRole, res.SuperAdminID, res.AdminUserID)
	}
	if res.ReaderUserID != 0 {
		_, _ = fmt.Fprintf(out, "Created %s (id %d) for reader user %d\n", rbac.ReaderRole, res.ReaderRoleID, res.ReaderUserID)
	}
	return nil
}
