package identity

import "strings"

// Role is the marketplace role an account was registered with
type Role string

const (
	// RoleCustomer buys from vendors
	RoleCustomer Role = "customer"
	// RoleVendor sells on the marketplace
	RoleVendor Role = "vendor"
	// RoleRider delivers orders
	RoleRider Role = "rider"
	// RoleAdmin operates the marketplace
	RoleAdmin Role = "admin"
)

// SelfServiceRoles are the roles a caller may pick at registration
var SelfServiceRoles = []Role{RoleCustomer, RoleVendor, RoleRider}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleRider, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsSelfService reports whether the role can be chosen at registration
func (r Role) IsSelfService() bool {
	for _, role := range SelfServiceRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a raw string into a Role
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.IsValid() {
		return "", ErrInvalidRole
	}
	return role, nil
}
