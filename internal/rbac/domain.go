package rbac

import "time"

// Seeded role names.
const (
	RoleStudent   = "student"
	RoleTeacher   = "teacher"
	RoleExpert    = "expert"
	RoleAdmin     = "admin"
	RoleMarketing = "marketing"
)

// Role represents a named capability tag.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// Principal describes the authenticated actor as read from a verified access token.
// Roles is the snapshot embedded at issuance, not a live view of the role store.
type Principal struct {
	ID      int64
	TokenID string
	Roles   RoleSet
	// HasRoleClaim is false when the token carried no roles claim at all.
	HasRoleClaim bool
}

// HasRole reports whether the principal's claim contains name.
func (p *Principal) HasRole(name string) bool {
	return p != nil && p.Roles.Has(name)
}
