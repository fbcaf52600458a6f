package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Manage organization memberships",
}

var (
	accessUserID  int64
	accessOrgID   int64
	accessActorID int64
)

var accessGrantCmd = &cobra.Command{
	Use:     "grant",
	Short:   "Give a user access to an organization",
	Example: `  assetdeskctl access grant --user 7 --org 3`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAccessManager(cmd, func(m accessManager) error {
			return runAccessGrant(cmd.Context(), m, cmd.OutOrStdout(), accessActorID, accessUserID, accessOrgID)
		})
	},
}

var accessRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Remove a user's access to an organization",
	Long: `Remove a membership. A user revoking their own last membership of an
organization (--actor equal to --user) is refused.`,
	Example: `  assetdeskctl access revoke --user 7 --org 3 --actor 1`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAccessManager(cmd, func(m accessManager) error {
			return runAccessRevoke(cmd.Context(), m, cmd.OutOrStdout(), accessActorID, accessUserID, accessOrgID)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{accessGrantCmd, accessRevokeCmd} {
		c.Flags().Int64Var(&accessUserID, "user", 0, "User id")
		c.Flags().Int64Var(&accessOrgID, "org", 0, "Organization id")
		c.Flags().Int64Var(&accessActorID, "actor", 0, "User id recorded as the actor in the audit log")
		_ = c.MarkFlagRequired("user")
		_ = c.MarkFlagRequired("org")
		accessCmd.AddCommand(c)
	}
}

type accessManager interface {
	GrantAccess(ctx context.Context, actorID, userID, orgID int64) error
	RevokeAccess(ctx context.Context, actorID, userID, orgID int64) error
}

func withAccessManager(cmd *cobra.Command, fn func(accessManager) error) error {
	svc, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc.orgs)
}

func validateMembershipIDs(userID, orgID int64) error {
	if userID <= 0 || orgID <= 0 {
		return errors.New("--user and --org must be positive")
	}
	return nil
}

func runAccessGrant(ctx context.Context, m accessManager, out io.Writer, actorID, userID, orgID int64) error {
	if err := validateMembershipIDs(userID, orgID); err != nil {
		return err
	}
	if err := m.GrantAccess(ctx, actorID, userID, orgID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "User %d can access organization %d\n", userID, orgID)
	return nil
}

func runAccessRevoke(ctx context.Context, m accessManager, out io.Writer, actorID, userID, orgID int64) error {
	if err := validateMembershipIDs(userID, orgID); err != nil {
		return err
	}
	if err := m.RevokeAccess(ctx, actorID, userID, orgID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Revoked access of user %d to organization %d\n", userID, orgID)
	return nil
}
