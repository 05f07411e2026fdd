package auth

const (
	PermissionReadProfile  = "profile.read"
	PermissionWriteProfile = "profile.write"
	PermissionReadUsers    = "users.read"
	PermissionWriteUsers   = "users.write"
	// PermissionManageUsers is the admin-wide override: it satisfies the
	// ownership gate for any user resource.
	PermissionManageUsers = "users.manage"
)

// rolePermissions is loaded once and never mutated, which makes it safe to
// read from every request goroutine without locking.
var rolePermissions = map[Role][]string{
	RoleUser: {
		PermissionReadProfile,
		PermissionWriteProfile,
	},
	RoleAdmin: {
		PermissionReadProfile,
		PermissionWriteProfile,
		PermissionReadUsers,
		PermissionWriteUsers,
		PermissionManageUsers,
	},
}

// Permissions resolves the permission set for a role. Unknown roles yield an
// empty set, never an error. The returned map is a copy; callers may keep it.
func Permissions(role Role) map[string]struct{} {
	list := rolePermissions[role]
	set := make(map[string]struct{}, len(list))
	for _, p := range list {
		set[p] = struct{}{}
	}
	return set
}

// ValidRole reports whether the role is one of the fixed role values.
func ValidRole(role Role) bool {
	_, ok := rolePermissions[role]
	return ok
}

// Roles lists the known role values.
func Roles() []Role {
	return []Role{RoleUser, RoleAdmin}
}
