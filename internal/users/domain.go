package users

import (
	"time"

	"github.com/flashy-edu/flashy/internal/shared"
)

// User represents a user account for management.
type User struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Roles           []string   `json:"roles"`
}

// ListFilters narrows a user listing.
type ListFilters struct {
	Page    int
	PerPage int
	Search  string
	Role    string
	Active  *bool
}

// Page is a page of users with its pagination metadata.
type Page struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}
