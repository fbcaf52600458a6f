package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/assetdesk/assetdesk/internal/shared"
)

// Requirement is a predicate over an effective permission set.
type Requirement interface {
	Satisfied(granted PermissionSet) bool
	Describe() string
}

type single struct{ p Permission }

func (r single) Satisfied(granted PermissionSet) bool { return granted.Has(r.p) }
func (r single) Describe() string                     { return string(r.p) }

type anyOf []Permission

func (r anyOf) Satisfied(granted PermissionSet) bool { return granted.HasAny(r...) }
func (r anyOf) Describe() string                     { return "any(" + joinPermissions(r) + ")" }

type allOf []Permission

func (r allOf) Satisfied(granted PermissionSet) bool { return granted.HasAll(r...) }
func (r allOf) Describe() string                     { return "all(" + joinPermissions(r) + ")" }

type authenticated struct{}

func (authenticated) Satisfied(PermissionSet) bool { return true }
func (authenticated) Describe() string             { return "authenticated" }

// Single requires exactly one permission.
func Single(p Permission) Requirement { return single{p: p} }

// AnyOf requires at least one of perms. An empty AnyOf is never satisfied.
func AnyOf(perms ...Permission) Requirement { return anyOf(perms) }

// AllOf requires every one of perms.
func AllOf(perms ...Permission) Requirement { return allOf(perms) }

// Authenticated only requires a principal.
func Authenticated() Requirement { return authenticated{} }

func joinPermissions(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

// PermissionLoader reads the authoritative permissions of a user.
type PermissionLoader interface {
	UserPermissions(ctx context.Context, userID int64) (PermissionSet, error)
}

// DecisionRecorder counts authorization outcomes.
type DecisionRecorder interface {
	RecordAuthzDecision(decision, requirement string)
}

// Authorization decisions reported to the DecisionRecorder.
const (
	DecisionAllowed         = "allowed"
	DecisionDenied          = "denied"
	DecisionUnauthenticated = "unauthenticated"
	DecisionError           = "error"
)

// Gate evaluates requirements against permissions loaded from the role
// store on every call. Cached snapshots are never consulted.
type Gate struct {
	loader  PermissionLoader
	metrics DecisionRecorder
	logger  *slog.Logger
}

// NewGate builds a Gate.
func NewGate(loader PermissionLoader, metrics DecisionRecorder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{loader: loader, metrics: metrics, logger: logger}
}

// Authorize checks req for principal. A nil principal fails with
// ErrUnauthenticated before any permission lookup.
func (g *Gate) Authorize(ctx context.Context, principal *shared.Principal, req Requirement) error {
	_, err := g.authorize(ctx, principal, req)
	return err
}

func (g *Gate) authorize(ctx context.Context, principal *shared.Principal, req Requirement) (PermissionSet, error) {
	if req == nil {
		req = Authenticated()
	}
	desc := req.Describe()
	if principal == nil {
		g.observe(DecisionUnauthenticated, desc)
		return nil, ErrUnauthenticated
	}
	granted, err := g.loader.UserPermissions(ctx, principal.UserID)
	if err != nil {
		g.observe(DecisionError, desc)
		return nil, fmt.Errorf("rbac: load permissions for user %d: %w", principal.UserID, err)
	}
	if !req.Satisfied(granted) {
		g.observe(DecisionDenied, desc)
		g.logger.Warn("authorization denied",
			slog.Int64("user_id", principal.UserID),
			slog.String("requirement", desc))
		return nil, ErrForbidden
	}
	g.observe(DecisionAllowed, desc)
	return granted, nil
}

func (g *Gate) observe(decision, requirement string) {
	if g.metrics != nil {
		g.metrics.RecordAuthzDecision(decision, requirement)
	}
}

// Guard runs fn only when principal satisfies req and returns fn's result
// unchanged.
func Guard[T any](ctx context.Context, g *Gate, principal *shared.Principal, req Requirement, fn func(context.Context) (T, error)) (T, error) {
	if err := g.Authorize(ctx, principal, req); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}

type permissionsContextKey struct{}

// ContextWithPermissions stores the permissions loaded by the gate.
func ContextWithPermissions(ctx context.Context, perms PermissionSet) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, perms)
}

// PermissionsFromContext returns the permissions loaded by the gate for
// the current request.
func PermissionsFromContext(ctx context.Context) (PermissionSet, bool) {
	perms, ok := ctx.Value(permissionsContextKey{}).(PermissionSet)
	return perms, ok
}
