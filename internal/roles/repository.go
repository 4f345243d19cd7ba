package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashy-edu/flashy/internal/platform/db"
	"github.com/flashy-edu/flashy/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var sortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"created_at": "created_at",
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context, filters RoleListFilters) ([]Role, error) {
	col, ok := sortColumns[filters.SortBy]
	if !ok {
		col = "name"
	}
	dir := "ASC"
	if strings.EqualFold(filters.SortDir, "desc") {
		dir = "DESC"
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY `+col+` `+dir)
	if err != nil {
		return nil, err
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		var role Role
		err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
		return role, err
	})
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	return roles, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "roles_name_key") {
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrDuplicate, name)
		}
		return Role{}, err
	}
	return role, nil
}

// UpsertRole inserts or refreshes the description of a role. Used by seeding.
func (r *Repository) UpsertRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, updated_at = NOW()
		RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}
