// Package role defines organization roles, permission tokens and the static
// role to permission table.
package role

import (
	"errors"
	"strings"
)

type Role string

const (
	Owner   Role = "owner"
	Admin   Role = "admin"
	Manager Role = "manager"
	Member  Role = "member"
	Viewer  Role = "viewer"
	Finance Role = "finance"
	Marcom  Role = "marcom"
)

type Permission string

const (
	OrgUpdate         Permission = "org:update"
	OrgDelete         Permission = "org:delete"
	OrgViewSettings   Permission = "org:view_settings"
	OrgUpdateSettings Permission = "org:update_settings"

	MemberInvite     Permission = "member:invite"
	MemberRemove     Permission = "member:remove"
	MemberUpdateRole Permission = "member:update_role"
	MemberView       Permission = "member:view"

	ContentCreate Permission = "content:create"
	ContentUpdate Permission = "content:update"
	ContentDelete Permission = "content:delete"
	ContentView   Permission = "content:view"

	BillingView   Permission = "billing:view"
	BillingUpdate Permission = "billing:update"
	BillingCancel Permission = "billing:cancel"

	AdminViewAnalytics Permission = "admin:view_analytics"
	AdminManageOrgs    Permission = "admin:manage_orgs"
	AdminManageUsers   Permission = "admin:manage_users"
)

var ErrInvalidRole = errors.New("invalid_role")

var allRoles = []Role{Owner, Admin, Manager, Member, Viewer, Finance, Marcom}

var allPermissions = []Permission{
	OrgUpdate, OrgDelete, OrgViewSettings, OrgUpdateSettings,
	MemberInvite, MemberRemove, MemberUpdateRole, MemberView,
	ContentCreate, ContentUpdate, ContentDelete, ContentView,
	BillingView, BillingUpdate, BillingCancel,
	AdminViewAnalytics, AdminManageOrgs, AdminManageUsers,
}

var rolePermissions = map[Role][]Permission{
	Owner: allPermissions,
	Admin: {
		OrgUpdate, OrgViewSettings, OrgUpdateSettings,
		MemberInvite, MemberRemove, MemberUpdateRole, MemberView,
		ContentCreate, ContentUpdate, ContentDelete, ContentView,
		BillingView, BillingUpdate,
		AdminViewAnalytics,
	},
	Manager: {
		OrgViewSettings,
		MemberInvite, MemberView,
		ContentCreate, ContentUpdate, ContentDelete, ContentView,
	},
	Member: {
		OrgViewSettings,
		MemberView,
		ContentCreate, ContentUpdate, ContentView,
	},
	Viewer: {
		OrgViewSettings,
		MemberView,
		ContentView,
	},
	Finance: {
		OrgViewSettings,
		MemberView,
		BillingView, BillingUpdate,
	},
	Marcom: {
		OrgViewSettings,
		MemberView,
		ContentCreate, ContentUpdate, ContentDelete, ContentView,
	},
}

var lookup = buildLookup()

func buildLookup() map[Role]map[Permission]struct{} {
	out := make(map[Role]map[Permission]struct{}, len(rolePermissions))
	for r, perms := range rolePermissions {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		out[r] = set
	}
	return out
}

// Roles lists every assignable role.
func Roles() []Role {
	return append([]Role(nil), allRoles...)
}

// Permissions lists every permission token.
func Permissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

// PermissionsFor returns a copy of the permissions granted to r. Unknown roles get none.
func PermissionsFor(r Role) []Permission {
	return append([]Permission(nil), rolePermissions[r]...)
}

func HasPermission(r Role, p Permission) bool {
	_, ok := lookup[r][p]
	return ok
}

func Valid(r Role) bool {
	_, ok := rolePermissions[r]
	return ok
}

func Parse(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !Valid(r) {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Table returns a copy of the full role to permission table.
func Table() map[Role][]Permission {
	out := make(map[Role][]Permission, len(rolePermissions))
	for r := range rolePermissions {
		out[r] = PermissionsFor(r)
	}
	return out
}

// Strings converts a permission slice into plain strings for storage.
func Strings(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}

func (r Role) String() string { return string(r) }

func (p Permission) String() string { return string(p) }
