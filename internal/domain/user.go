package domain

import (
	"errors"
	"time"
)

// Role is the account role used for authorization and assignment.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// IsElevated reports whether the role may act on tickets it did not create.
func (r Role) IsElevated() bool {
	return r == RoleModerator || r == RoleAdmin
}

// User is an account that creates tickets or handles them.
type User struct {
	ID        string
	Email     string
	Role      Role
	Skills    []string
	CreatedAt time.Time
}

// ErrNoAssignee means neither a matching moderator nor an admin exists.
var ErrNoAssignee = errors.New("no moderator or admin available for assignment")
