package orgaccess

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/assetdesk/assetdesk/internal/shared"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	wherePattern      = regexp.MustCompile(`(?i)\bwhere\b`)
)

// ScopeParams describes the caller and the optional explicit filter of a
// scoped listing.
type ScopeParams struct {
	// Alias qualifies organization_id. Empty means unqualified.
	Alias  string
	UserID int64
	Tier   shared.Tier
	// OrganizationID restricts the listing to one organization when set.
	OrganizationID *int64
	// Where is the caller's own predicate. It is parenthesised before the
	// access clause is joined to it.
	Where string
	// Args are the placeholders already used by Where.
	Args []any
}

// BuildScopedQuery appends one WHERE clause to base: the caller's predicate,
// the organization visibility clause, then the explicit filter, joined by
// AND. Rows with a NULL organization_id stay visible to every caller;
// elevated tiers get no visibility clause at all. Placeholders continue
// after params.Args.
//
// base is the SELECT or DELETE with its FROM and JOIN parts only. A base
// containing WHERE anywhere, including in a subquery or join, is rejected
// so the access clause can never bind to the wrong predicate.
func BuildScopedQuery(base string, params ScopeParams) (string, []any, error) {
	if wherePattern.MatchString(base) {
		return "", nil, errors.New("orgaccess: base query must not contain WHERE; pass the predicate in ScopeParams.Where")
	}
	column := "organization_id"
	if params.Alias != "" {
		if !identifierPattern.MatchString(params.Alias) {
			return "", nil, fmt.Errorf("orgaccess: invalid table alias %q", params.Alias)
		}
		column = params.Alias + "." + column
	}

	args := make([]any, len(params.Args), len(params.Args)+2)
	copy(args, params.Args)

	var clauses []string
	if where := strings.TrimSpace(params.Where); where != "" {
		clauses = append(clauses, "("+where+")")
	}
	if !params.Tier.Elevated() {
		args = append(args, params.UserID)
		clauses = append(clauses, fmt.Sprintf(
			"(%s IS NULL OR %s IN (SELECT organization_id FROM user_organizations WHERE user_id = $%d))",
			column, column, len(args)))
	}
	if params.OrganizationID != nil {
		args = append(args, *params.OrganizationID)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	base = strings.TrimRight(base, " \n\t")
	if len(clauses) == 0 {
		return base, args, nil
	}
	return base + " WHERE " + strings.Join(clauses, " AND "), args, nil
}
