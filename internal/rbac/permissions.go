package rbac

import (
	"sort"
	"strings"
)

// Permission is a single capability token. The set is closed and defined
// at compile time.
type Permission string

// Permission catalog. Declaration order is the catalog order used for
// listings and snapshots.
const (
	UsersRead           Permission = "users_read"
	UsersManage         Permission = "users_manage"
	RolesRead           Permission = "roles_read"
	RolesManage         Permission = "roles_manage"
	DevicesRead         Permission = "devices_read"
	DevicesManage       Permission = "devices_manage"
	ProvidersRead       Permission = "providers_read"
	ProvidersManage     Permission = "providers_manage"
	ArticlesRead        Permission = "articles_read"
	ArticlesManage      Permission = "articles_manage"
	NotesRead           Permission = "notes_read"
	NotesManage         Permission = "notes_manage"
	CubesRead           Permission = "cubes_read"
	CubesManage         Permission = "cubes_manage"
	GuestWifiRead       Permission = "guest_wifi_read"
	GuestWifiManage     Permission = "guest_wifi_manage"
	OrganizationsRead   Permission = "organizations_read"
	OrganizationsManage Permission = "organizations_manage"
	ShiftsRead          Permission = "shifts_read"
	ShiftsManage        Permission = "shifts_manage"
	TodoRead            Permission = "todo_read"
	TodoManage          Permission = "todo_manage"
)

var catalog = []Permission{
	UsersRead, UsersManage,
	RolesRead, RolesManage,
	DevicesRead, DevicesManage,
	ProvidersRead, ProvidersManage,
	ArticlesRead, ArticlesManage,
	NotesRead, NotesManage,
	CubesRead, CubesManage,
	GuestWifiRead, GuestWifiManage,
	OrganizationsRead, OrganizationsManage,
	ShiftsRead, ShiftsManage,
	TodoRead, TodoManage,
}

var labels = map[Permission]string{
	UsersRead:           "View users",
	UsersManage:         "Manage users",
	RolesRead:           "View roles",
	RolesManage:         "Manage roles",
	DevicesRead:         "View devices",
	DevicesManage:       "Manage devices",
	ProvidersRead:       "View providers",
	ProvidersManage:     "Manage providers",
	ArticlesRead:        "View knowledge base articles",
	ArticlesManage:      "Manage knowledge base articles",
	NotesRead:           "View notes",
	NotesManage:         "Manage notes",
	CubesRead:           "View cubes",
	CubesManage:         "Manage cubes",
	GuestWifiRead:       "View guest WiFi",
	GuestWifiManage:     "Manage guest WiFi",
	OrganizationsRead:   "View organizations",
	OrganizationsManage: "Manage organizations",
	ShiftsRead:          "View shifts",
	ShiftsManage:        "Manage shifts",
	TodoRead:            "View tasks",
	TodoManage:          "Manage tasks",
}

var catalogIndex = func() map[Permission]int {
	idx := make(map[Permission]int, len(catalog))
	for i, p := range catalog {
		idx[p] = i
	}
	return idx
}()

// All returns every permission in catalog order.
func All() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// ReadPermissions returns the *_read half of the catalog.
func ReadPermissions() []Permission {
	out := make([]Permission, 0, len(catalog)/2)
	for _, p := range catalog {
		if strings.HasSuffix(string(p), "_read") {
			out = append(out, p)
		}
	}
	return out
}

// Valid reports whether p belongs to the catalog.
func (p Permission) Valid() bool {
	_, ok := catalogIndex[p]
	return ok
}

// Label returns the display string for p.
func (p Permission) Label() string {
	return Label(p)
}

// Label returns the display string for a token. Unknown tokens are
// returned as-is.
func Label(p Permission) string {
	if label, ok := labels[p]; ok {
		return label
	}
	return string(p)
}

// ParsePermission normalizes s and looks it up in the catalog.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", false
	}
	return p, true
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether the set intersects perms.
func (s PermissionSet) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set is a superset of perms.
func (s PermissionSet) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Union returns a new set holding the members of s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Equal reports set equality.
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Len returns the number of members.
func (s PermissionSet) Len() int { return len(s) }

// Slice returns the members in catalog order. Tokens outside the catalog
// sort last, alphabetically.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ii, iok := catalogIndex[out[i]]
		jj, jok := catalogIndex[out[j]]
		switch {
		case iok && jok:
			return ii < jj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// Strings returns the members as plain tokens in catalog order.
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
