package orgaccess

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/assetdesk/assetdesk/internal/shared"
)

type membershipKey struct{ user, org int64 }

type memoryRepo struct {
	mu          sync.Mutex
	users       map[int64]shared.Tier
	orgs        map[int64]Organization
	memberships map[membershipKey]time.Time
	nextOrg     int64

	failOn string
}

type memoryTx struct {
	repo *memoryRepo
}

var errInjected = errors.New("injected failure")

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:       make(map[int64]shared.Tier),
		orgs:        make(map[int64]Organization),
		memberships: make(map[membershipKey]time.Time),
		nextOrg:     1,
	}
}

func (r *memoryRepo) addUser(id int64, tier shared.Tier) { r.users[id] = tier }

func (r *memoryRepo) addOrg(name string) int64 {
	id := r.nextOrg
	r.nextOrg++
	r.orgs[id] = Organization{ID: id, Name: name, CreatedAt: time.Now()}
	return id
}

func (r *memoryRepo) addMember(user, org int64) {
	r.memberships[membershipKey{user, org}] = time.Now()
}

func (r *memoryRepo) countMemberships(user, org int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memberships[membershipKey{user, org}]; ok {
		return 1
	}
	return 0
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orgs := maps.Clone(r.orgs)
	memberships := maps.Clone(r.memberships)
	nextOrg := r.nextOrg
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.orgs, r.memberships, r.nextOrg = orgs, memberships, nextOrg
		return err
	}
	return nil
}

func (r *memoryRepo) UserTier(_ context.Context, userID int64) (shared.Tier, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn == "UserTier" {
		return shared.TierStandard, false, errInjected
	}
	tier, ok := r.users[userID]
	return tier, ok, nil
}

func (r *memoryRepo) OrganizationExists(_ context.Context, orgID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.orgs[orgID]
	return ok, nil
}

func (r *memoryRepo) MembershipExists(_ context.Context, userID, orgID int64) (bool, error) {
	return r.countMemberships(userID, orgID) == 1, nil
}

func (r *memoryRepo) GetOrganization(_ context.Context, orgID int64) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org, ok := r.orgs[orgID]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *memoryRepo) ListOrganizations(context.Context) ([]Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedByName(slices.Collect(maps.Values(r.orgs))), nil
}

func (r *memoryRepo) ListUserOrganizations(_ context.Context, userID int64) ([]Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Organization
	for key := range r.memberships {
		if key.user == userID {
			out = append(out, r.orgs[key.org])
		}
	}
	return sortedByName(out), nil
}

func (r *memoryRepo) ListMembers(_ context.Context, orgID int64) ([]Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Membership
	for key, at := range r.memberships {
		if key.org == orgID {
			out = append(out, Membership{UserID: key.user, OrganizationID: orgID, CreatedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *memoryTx) InsertOrganization(_ context.Context, org Organization) (Organization, error) {
	org.ID = t.repo.nextOrg
	t.repo.nextOrg++
	org.CreatedAt = time.Now()
	t.repo.orgs[org.ID] = org
	return org, nil
}

func (t *memoryTx) InsertMembership(_ context.Context, userID, orgID int64) (bool, error) {
	if t.repo.failOn == "InsertMembership" {
		return false, errInjected
	}
	if _, ok := t.repo.orgs[orgID]; !ok {
		return false, ErrNotFound
	}
	if _, ok := t.repo.users[userID]; !ok {
		return false, ErrNotFound
	}
	key := membershipKey{userID, orgID}
	if _, ok := t.repo.memberships[key]; ok {
		return false, nil
	}
	t.repo.memberships[key] = time.Now()
	return true, nil
}

func (t *memoryTx) LockMemberships(_ context.Context, orgID int64) ([]int64, error) {
	var ids []int64
	for key := range t.repo.memberships {
		if key.org == orgID {
			ids = append(ids, key.user)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *memoryTx) DeleteMembership(_ context.Context, userID, orgID int64) (bool, error) {
	key := membershipKey{userID, orgID}
	if _, ok := t.repo.memberships[key]; !ok {
		return false, nil
	}
	delete(t.repo.memberships, key)
	return true, nil
}

func sortedByName(orgs []Organization) []Organization {
	sort.Slice(orgs, func(i, j int) bool {
		if orgs[i].Name == orgs[j].Name {
			return orgs[i].ID < orgs[j].ID
		}
		return orgs[i].Name < orgs[j].Name
	})
	if orgs == nil {
		return []Organization{}
	}
	return orgs
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}
