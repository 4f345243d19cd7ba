package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashy-edu/flashy/internal/platform/db"
	"github.com/flashy-edu/flashy/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, user NewUser, roleNames []string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, username, password_hash, is_active, is_email_verified, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsActive, &u.IsEmailVerified, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// CreateUser inserts the user, its profile row and its initial roles in one transaction.
func (r *PGRepository) CreateUser(ctx context.Context, nu NewUser, roleNames []string) (*User, error) {
	var created *User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `
			INSERT INTO users (email, username, password_hash, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, NOW(), NOW())
			RETURNING `+userColumns, nu.Email, nu.Username, nu.PasswordHash))
		if err != nil {
			switch {
			case db.IsUniqueViolation(err, "users_email_key"):
				return fmt.Errorf("%w: email already registered", shared.ErrDuplicate)
			case db.IsUniqueViolation(err, "users_username_key"):
				return fmt.Errorf("%w: username already taken", shared.ErrDuplicate)
			}
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO profiles (user_id, first_name, last_name, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NOW(), NOW())`, u.ID, nu.FirstName, nu.LastName); err != nil {
			return err
		}
		for _, name := range roleNames {
			tag, err := tx.Exec(ctx, `
				INSERT INTO user_roles (user_id, role_id, created_at)
				SELECT $1, id, NOW() FROM roles WHERE name = $2
				ON CONFLICT DO NOTHING`, u.ID, name)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: role %q is not seeded", shared.ErrValidation, name)
			}
		}
		u.Roles = roleNames
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

var _ Repository = (*PGRepository)(nil)
