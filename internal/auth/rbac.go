package auth

import "strings"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
)

// NormalizeRole maps an arbitrary role string onto a known role, defaulting
// to the least privileged.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleEmployee):
		return RoleEmployee
	case string(RoleCustomer):
		return RoleCustomer
	default:
		return RoleCustomer
	}
}

func HasRole(role string, allowed ...Role) bool {
	if len(allowed) == 0 {
		return false
	}
	current := NormalizeRole(role)
	for _, candidate := range allowed {
		if current == candidate {
			return true
		}
	}
	return false
}

func IsAdmin(role string) bool {
	return NormalizeRole(role) == RoleAdmin
}

// IsStaff reports whether the role can manage catalog data.
func IsStaff(role string) bool {
	switch NormalizeRole(role) {
	case RoleAdmin, RoleEmployee:
		return true
	default:
		return false
	}
}
