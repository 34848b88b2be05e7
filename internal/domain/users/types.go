package users

import "time"

// Role controls what a user can do. Customers only see their own feeds and
// pricing; employees manage the catalog; admins manage everything.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
)

// ValidRole reports whether value is a known role.
func ValidRole(value string) bool {
	switch Role(value) {
	case RoleAdmin, RoleEmployee, RoleCustomer:
		return true
	}
	return false
}

// User is an account. PasswordHash never leaves the service layer.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	Role           Role       `json:"role"`
	CustomerNumber string     `json:"customer_number,omitempty"`
	PasswordHash   string     `json:"-"`
	IsActive       bool       `json:"is_active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Filters narrow user listings.
type Filters struct {
	Role     Role
	IsActive *bool
	Query    string
	Limit    int
	Offset   int
}
