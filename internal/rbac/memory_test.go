package rbac

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/assetdesk/assetdesk/internal/shared"
)

// memoryRepo is an in-memory role store. Transactions snapshot the state
// and restore it when the callback fails.
type memoryRepo struct {
	mu          sync.Mutex
	nextID      int64
	roles       map[int64]Role
	assignments map[int64]map[int64]struct{} // user -> roles

	failOn string
	txs    int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:      1,
		roles:       make(map[int64]Role),
		assignments: make(map[int64]map[int64]struct{}),
	}
}

var errInjected = errors.New("injected failure")

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs++
	roles := make(map[int64]Role, len(r.roles))
	for id, role := range r.roles {
		role.Permissions = maps.Clone(role.Permissions)
		roles[id] = role
	}
	assignments := make(map[int64]map[int64]struct{}, len(r.assignments))
	for uid, set := range r.assignments {
		assignments[uid] = maps.Clone(set)
	}
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.roles, r.assignments, r.nextID = roles, assignments, nextID
		return err
	}
	return nil
}

func (r *memoryRepo) CountRoles(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.roles), nil
}

func (r *memoryRepo) ListRoles(context.Context) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn == "ListRoles" {
		return nil, errInjected
	}
	ids := slices.Sorted(maps.Keys(r.roles))
	out := make([]Role, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRole(r.roles[id]))
	}
	return out, nil
}

func (r *memoryRepo) GetRole(_ context.Context, id int64) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return cloneRole(role), nil
}

func (r *memoryRepo) GetRoleByName(_ context.Context, name string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	return Role{}, ErrNotFound
}

func (r *memoryRepo) UserRoleIDs(_ context.Context, userID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.assignments[userID])), nil
}

func (r *memoryRepo) UserIDsWithRole(_ context.Context, roleID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for uid, set := range r.assignments {
		if _, ok := set[roleID]; ok {
			out = append(out, uid)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t *memoryTx) fail(op string) error {
	if t.repo.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memoryTx) RoleNameTaken(_ context.Context, name string, exceptID int64) (bool, error) {
	for id, role := range t.repo.roles {
		if role.Name == name && id != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertRole(_ context.Context, role Role) (Role, error) {
	if err := t.fail("InsertRole"); err != nil {
		return Role{}, err
	}
	if !role.HasID() {
		role.ID = t.repo.nextID
		t.repo.nextID++
	}
	if _, exists := t.repo.roles[role.ID]; exists {
		return Role{}, ErrConflict
	}
	now := time.Now()
	role.CreatedAt, role.UpdatedAt = now, now
	role.Permissions = PermissionSet{}
	t.repo.roles[role.ID] = role
	return role, nil
}

func (t *memoryTx) UpdateRole(_ context.Context, role Role) (Role, error) {
	existing, ok := t.repo.roles[role.ID]
	if !ok {
		return Role{}, ErrNotFound
	}
	existing.Name = role.Name
	existing.Description = role.Description
	existing.UpdatedAt = time.Now()
	t.repo.roles[role.ID] = existing
	role.CreatedAt, role.UpdatedAt = existing.CreatedAt, existing.UpdatedAt
	return role, nil
}

func (t *memoryTx) ReplaceRolePermissions(_ context.Context, roleID int64, perms []Permission) error {
	if err := t.fail("ReplaceRolePermissions"); err != nil {
		return err
	}
	role := t.repo.roles[roleID]
	role.Permissions = NewPermissionSet(perms...)
	t.repo.roles[roleID] = role
	return nil
}

func (t *memoryTx) DeleteRolePermissions(_ context.Context, roleID int64) error {
	role, ok := t.repo.roles[roleID]
	if ok {
		role.Permissions = PermissionSet{}
		t.repo.roles[roleID] = role
	}
	return nil
}

func (t *memoryTx) DeleteRoleAssignments(_ context.Context, roleID int64) ([]int64, error) {
	if err := t.fail("DeleteRoleAssignments"); err != nil {
		return nil, err
	}
	var users []int64
	for uid, set := range t.repo.assignments {
		if _, ok := set[roleID]; ok {
			delete(set, roleID)
			users = append(users, uid)
		}
	}
	slices.Sort(users)
	return users, nil
}

func (t *memoryTx) DeleteRole(_ context.Context, roleID int64) (bool, error) {
	if err := t.fail("DeleteRole"); err != nil {
		return false, err
	}
	if _, ok := t.repo.roles[roleID]; !ok {
		return false, nil
	}
	delete(t.repo.roles, roleID)
	return true, nil
}

func (t *memoryTx) ExistingRoleIDs(_ context.Context, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if _, ok := t.repo.roles[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *memoryTx) ReplaceUserRoles(_ context.Context, userID int64, roleIDs []int64) error {
	delete(t.repo.assignments, userID)
	if err := t.fail("ReplaceUserRoles"); err != nil {
		return err
	}
	set := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		set[id] = struct{}{}
	}
	t.repo.assignments[userID] = set
	return nil
}

func cloneRole(role Role) Role {
	role.Permissions = maps.Clone(role.Permissions)
	if role.Permissions == nil {
		role.Permissions = PermissionSet{}
	}
	return role
}

// recordingAudit captures audit entries.
type recordingAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// recordingNotifier captures users scheduled for a snapshot refresh.
type recordingNotifier struct {
	mu    sync.Mutex
	users []int64
}

func (n *recordingNotifier) NotifyPermissionsChanged(_ context.Context, userIDs ...int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userIDs...)
	return nil
}

// memorySnapshots is an in-memory SnapshotStore.
type memorySnapshots struct {
	mu    sync.Mutex
	perms map[int64]PermissionSet
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{perms: make(map[int64]PermissionSet)}
}

func (m *memorySnapshots) Get(_ context.Context, userID int64) (PermissionSet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms, ok := m.perms[userID]
	return perms, ok, nil
}

func (m *memorySnapshots) Put(_ context.Context, userID int64, perms PermissionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[userID] = perms
	return nil
}

func (m *memorySnapshots) Invalidate(_ context.Context, userIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range userIDs {
		delete(m.perms, id)
	}
	return nil
}
