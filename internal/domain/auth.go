package domain

// Principal is the authenticated caller of a controller operation.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

// IsAdmin reports whether the caller has the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
