package enums

// UserRole is the role claim carried by bearer tokens.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

var userRoles = newValueSet("user role", UserRoleCustomer, UserRoleAdmin)

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse(value)
}
