package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/assetdesk/assetdesk/internal/rbac"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect roles",
}

var rolesListJSON bool

var rolesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List roles and their permissions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer svc.Close()
		return runRolesList(cmd.Context(), svc.roles, cmd.OutOrStdout(), rolesListJSON)
	},
}

func init() {
	rolesListCmd.Flags().BoolVar(&rolesListJSON, "json", false, "Output as JSON")
	rolesCmd.AddCommand(rolesListCmd)
}

type roleLister interface {
	ListAll(ctx context.Context) ([]rbac.Role, error)
}

type roleRow struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func runRolesList(ctx context.Context, store roleLister, out io.Writer, asJSON bool) error {
	roles, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	rows := make([]roleRow, len(roles))
	for i, role := range roles {
		rows[i] = roleRow{ID: role.ID, Name: role.Name, Description: role.Description, Permissions: role.Permissions.Strings()}
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No roles found. Run 'assetdeskctl bootstrap'.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPERMISSIONS")
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", row.ID, row.Name, strings.Join(row.Permissions, ","))
	}
	return w.Flush()
}
