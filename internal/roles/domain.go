package roles

import (
	"github.com/flashy-edu/flashy/internal/rbac"
)

// Role is a catalogue entry. It shares its shape with the role store.
type Role = rbac.Role

// RoleListFilters controls catalogue ordering.
type RoleListFilters struct {
	SortBy  string
	SortDir string
}

// CreateInput carries a new catalogue entry.
type CreateInput struct {
	Name        string
	Description string
}
