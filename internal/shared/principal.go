package shared

import (
	"context"
	"strings"
)

// Tier is the coarse account tier stored on the user record. It only
// drives organization scoping and is never consulted by permission checks.
type Tier int

const (
	// TierStandard is an ordinary account scoped by memberships.
	TierStandard Tier = iota
	// TierManager bypasses organization scoping.
	TierManager
	// TierAdmin bypasses organization scoping.
	TierAdmin
)

// ParseTier maps the stored tag to a Tier. Unknown tags are Standard.
func ParseTier(tag string) Tier {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "admin":
		return TierAdmin
	case "manager":
		return TierManager
	default:
		return TierStandard
	}
}

// String returns the tag persisted in users.role.
func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return "admin"
	case TierManager:
		return "manager"
	default:
		return "user"
	}
}

// MarshalText encodes the tier as its stored tag.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a stored tag; unknown tags are Standard.
func (t *Tier) UnmarshalText(b []byte) error {
	*t = ParseTier(string(b))
	return nil
}

// Elevated reports whether the tier bypasses organization scoping.
func (t Tier) Elevated() bool {
	return t == TierAdmin || t == TierManager
}

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Tier     Tier   `json:"tier"`
}

// PrincipalFromContext returns the principal of the request session.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	return SessionFromContext(ctx).Principal()
}
