package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashy-edu/flashy/internal/platform/db"
	"github.com/flashy-edu/flashy/internal/shared"
)

// RoleStore is the durable user→role mapping. Token issuance and refresh only
// read from it; mutation is reserved for administrators.
type RoleStore interface {
	RolesOf(ctx context.Context, userID int64) (RoleSet, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	AssignRole(ctx context.Context, userID int64, roleName string) error
	RemoveRole(ctx context.Context, userID int64, roleName string) error
}

// PGStore implements RoleStore using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL role store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// RolesOf returns the roles currently assigned to userID.
func (s *PGStore) RolesOf(ctx context.Context, userID int64) (RoleSet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: roles of %d: %w", userID, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("rbac: roles of %d: %w", userID, err)
	}
	return NewRoleSet(names...), nil
}

// RoleByName fetches a role by its normalized name.
func (s *PGStore) RoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM roles WHERE name = $1`, NormalizeRole(name)).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// AssignRole grants roleName to userID. Assigning an already held role is a no-op.
func (s *PGStore) AssignRole(ctx context.Context, userID int64, roleName string) error {
	role, err := s.RoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, role.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("rbac: user %d: %w", userID, shared.ErrNotFound)
		}
		return err
	}
	return nil
}

// RemoveRole revokes roleName from userID. Removing a role not held is a no-op.
func (s *PGStore) RemoveRole(ctx context.Context, userID int64, roleName string) error {
	role, err := s.RoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, role.ID)
	return err
}

var _ RoleStore = (*PGStore)(nil)
