package domain

// Role is the access level carried by a service token.
type Role string

// Roles, in ascending order of privilege.
const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleLevels = map[Role]int{
	RoleOperator: 1,
	RoleAdmin:    2,
}

// HasPermission reports whether r grants at least the min role's level.
func (r Role) HasPermission(min Role) bool {
	return roleLevels[r] >= roleLevels[min]
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}
