package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/assetdesk/assetdesk/internal/shared"
)

const snapshotLoadTimeout = 10 * time.Second

// Service orchestrates role persistence, assignment and effective
// permission computation.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	logger    *slog.Logger
	snapshots SnapshotStore
	notifier  SnapshotNotifier
	lookups   SnapshotRecorder
	refresh   singleflight.Group
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// SetSnapshotStore sets the cache holding UI-only permission snapshots.
func (s *Service) SetSnapshotStore(store SnapshotStore) {
	s.snapshots = store
}

// SetSnapshotRecorder sets the counter for snapshot cache lookups.
func (s *Service) SetSnapshotRecorder(r SnapshotRecorder) {
	s.lookups = r
}

// SetNotifier sets the asynchronous snapshot refresher.
func (s *Service) SetNotifier(n SnapshotNotifier) {
	s.notifier = n
}

// FindByName returns the role with the given name or ErrNotFound.
func (s *Service) FindByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, strings.TrimSpace(name))
}

// FindByID returns the role with the given id or ErrNotFound.
func (s *Service) FindByID(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListAll returns every role ordered by id.
func (s *Service) ListAll(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// Save persists a new role. Roles carrying an id are inserted with that id.
func (s *Service) Save(ctx context.Context, role Role) (Role, error) {
	role, perms, err := normalizeRole(role)
	if err != nil {
		return Role{}, err
	}

	var saved Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.RoleNameTaken(ctx, role.Name, NoID)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		saved, err = tx.InsertRole(ctx, role)
		if err != nil {
			return err
		}
		return tx.ReplaceRolePermissions(ctx, saved.ID, perms)
	})
	if err != nil {
		return Role{}, err
	}
	saved.Permissions = NewPermissionSet(perms...)

	s.record(ctx, "role.create", saved.ID, map[string]any{"name": saved.Name, "permissions": saved.Permissions.Strings()})
	return saved, nil
}

// Update overwrites name and description and fully replaces the
// permission rows of an existing role.
func (s *Service) Update(ctx context.Context, role Role) (Role, error) {
	if !role.HasID() {
		return Role{}, ErrNotFound
	}
	role, perms, err := normalizeRole(role)
	if err != nil {
		return Role{}, err
	}

	var updated Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.RoleNameTaken(ctx, role.Name, role.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		updated, err = tx.UpdateRole(ctx, role)
		if err != nil {
			return err
		}
		return tx.ReplaceRolePermissions(ctx, role.ID, perms)
	})
	if err != nil {
		return Role{}, err
	}
	updated.Permissions = NewPermissionSet(perms...)

	s.record(ctx, "role.update", updated.ID, map[string]any{"name": updated.Name, "permissions": updated.Permissions.Strings()})
	if users, err := s.repo.UserIDsWithRole(ctx, updated.ID); err != nil {
		s.logger.Warn("rbac: list role holders", slog.Int64("role_id", updated.ID), slog.Any("error", err))
	} else {
		s.permissionsChanged(ctx, users...)
	}
	return updated, nil
}

// Remove deletes a role together with its permission rows and user
// assignments. Nothing is deleted when the role does not exist.
func (s *Service) Remove(ctx context.Context, id int64) error {
	var affected []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteRolePermissions(ctx, id); err != nil {
			return err
		}
		users, err := tx.DeleteRoleAssignments(ctx, id)
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteRole(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		affected = users
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, "role.delete", id, map[string]any{"users": affected})
	s.permissionsChanged(ctx, affected...)
	return nil
}

// EffectivePermissions returns the union of the permissions of roles.
func EffectivePermissions(roles []Role) PermissionSet {
	out := make(PermissionSet)
	for _, role := range roles {
		for p := range role.Permissions {
			out[p] = struct{}{}
		}
	}
	return out
}

// RolesForUser returns the roles assigned to a user in catalog (id) order.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	ids, err := s.repo.UserRoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Role{}, nil
	}
	all, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, 0, len(ids))
	for _, role := range all {
		if slices.Contains(ids, role.ID) {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// UserPermissions computes the effective permissions of a user from the
// role store.
func (s *Service) UserPermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	roles, err := s.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return EffectivePermissions(roles), nil
}

// UsersWithRole returns the ids of users holding the role.
func (s *Service) UsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	return s.repo.UserIDsWithRole(ctx, roleID)
}

// AssignRolesToUser atomically replaces the role assignments of a user.
func (s *Service) AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) error {
	ids := dedupeIDs(roleIDs)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ExistingRoleIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(existing) != len(ids) {
			return fmt.Errorf("rbac: assign roles to user %d: %w", userID, ErrNotFound)
		}
		return tx.ReplaceUserRoles(ctx, userID, ids)
	})
	if err != nil {
		return err
	}

	s.record(ctx, "user.roles.assign", userID, map[string]any{"roles": ids})
	s.permissionsChanged(ctx, userID)
	return nil
}

// RefreshSnapshot recomputes the cached permission copy of a user.
// Concurrent refreshes for the same user share one load. The shared load
// outlives a caller that gives up, so it runs detached from the caller's
// cancellation under its own deadline.
func (s *Service) RefreshSnapshot(ctx context.Context, userID int64) (PermissionSet, error) {
	key := strconv.FormatInt(userID, 10)
	ch := s.refresh.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLoadTimeout)
		defer cancel()
		perms, err := s.UserPermissions(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		if s.snapshots != nil {
			if err := s.snapshots.Put(loadCtx, userID, perms); err != nil {
				return nil, err
			}
		}
		return perms, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

// Snapshot returns the cached permission copy for display purposes,
// recomputing it on a cache miss. It must not be used for enforcement.
func (s *Service) Snapshot(ctx context.Context, userID int64) (PermissionSet, error) {
	if s.snapshots != nil {
		perms, ok, err := s.snapshots.Get(ctx, userID)
		switch {
		case err != nil:
			s.recordLookup(SnapshotError)
			s.logger.Warn("rbac: read snapshot", slog.Int64("user_id", userID), slog.Any("error", err))
		case ok:
			s.recordLookup(SnapshotHit)
			return perms, nil
		default:
			s.recordLookup(SnapshotMiss)
		}
	}
	return s.RefreshSnapshot(ctx, userID)
}

func (s *Service) recordLookup(result string) {
	if s.lookups != nil {
		s.lookups.RecordSnapshotLookup(result)
	}
}

// permissionsChanged refreshes the actor's own snapshot synchronously and
// schedules the rest.
func (s *Service) permissionsChanged(ctx context.Context, userIDs ...int64) {
	if len(userIDs) == 0 {
		return
	}
	actor, hasActor := shared.PrincipalFromContext(ctx)
	others := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if hasActor && id == actor.UserID {
			if _, err := s.RefreshSnapshot(ctx, id); err != nil {
				s.logger.Warn("rbac: refresh own snapshot", slog.Int64("user_id", id), slog.Any("error", err))
			}
			continue
		}
		others = append(others, id)
	}
	if len(others) == 0 {
		return
	}
	if s.snapshots != nil {
		if err := s.snapshots.Invalidate(ctx, others...); err != nil {
			s.logger.Warn("rbac: invalidate snapshots", slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyPermissionsChanged(ctx, others...); err != nil {
			s.logger.Warn("rbac: schedule snapshot refresh", slog.Any("users", others), slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, action string, entityID int64, meta map[string]any) {
	var actorID int64
	if p, ok := shared.PrincipalFromContext(ctx); ok {
		actorID = p.UserID
	}
	entity := "role"
	if strings.HasPrefix(action, "user.") {
		entity = "user"
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("rbac: audit", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeRole(role Role) (Role, []Permission, error) {
	role.Name = strings.TrimSpace(role.Name)
	role.Description = strings.TrimSpace(role.Description)
	if role.Name == "" {
		return Role{}, nil, fmt.Errorf("%w: name required", ErrInvalidRole)
	}
	if len([]rune(role.Name)) > maxRoleNameLength {
		return Role{}, nil, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRole, maxRoleNameLength)
	}
	for p := range role.Permissions {
		if !p.Valid() {
			return Role{}, nil, fmt.Errorf("%w: unknown permission %q", ErrInvalidRole, p)
		}
	}
	return role, role.Permissions.Slice(), nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
