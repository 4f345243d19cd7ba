package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

const userSelect = `
	SELECT u.id, u.email, u.username, u.is_active, u.is_email_verified, u.last_login_at,
	       u.created_at, u.updated_at,
	       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.IsActive, &u.IsEmailVerified, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt, &u.Roles)
	return u, err
}

// buildFilters renders the WHERE clause for filters starting at placeholder $1.
func buildFilters(filters ListFilters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		clauses = append(clauses, fmt.Sprintf("(LOWER(u.email) LIKE $%d OR LOWER(u.username) LIKE $%d)", len(args), len(args)))
	}
	if filters.Role != "" {
		args = append(args, filters.Role)
		clauses = append(clauses, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM user_roles fur JOIN roles fr ON fr.id = fur.role_id
			WHERE fur.user_id = u.id AND fr.name = $%d)`, len(args)))
	}
	if filters.Active != nil {
		args = append(args, *filters.Active)
		clauses = append(clauses, fmt.Sprintf("u.is_active = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListUsers returns one page of users and the total matching count.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	where, args := buildFilters(filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	offset := shared.NewPagination(filters.Page, filters.PerPage, total).Offset()
	pageArgs := append(args, filters.PerPage, offset)
	query := userSelect + where + fmt.Sprintf(" GROUP BY u.id ORDER BY u.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	users := make([]User, 0, filters.PerPage)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// FindByID returns a single user with roles.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1 GROUP BY u.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
		}
		return User{}, err
	}
	return u, nil
}

// SetActive toggles the soft-disable flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// TouchLastLogin records a login time. Older timestamps never overwrite newer ones.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET last_login_at = $2
		WHERE id = $1 AND (last_login_at IS NULL OR last_login_at < $2)`, id, at)
	return err
}

const profileColumns = `user_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(bio, ''), COALESCE(role_title, ''), updated_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p         Profile
		updatedAt time.Time
	)
	if err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Bio, &p.RoleTitle, &updatedAt); err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = &updatedAt
	return p, nil
}

// FindProfile returns the profile row of userID.
func (r *Repository) FindProfile(ctx context.Context, userID int64) (Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("profile of user %d: %w", userID, shared.ErrNotFound)
		}
		return Profile{}, err
	}
	return p, nil
}

// UpsertProfile writes the non-nil fields of update, inserting the row when missing.
func (r *Repository) UpsertProfile(ctx context.Context, userID int64, update ProfileUpdate) (Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, first_name, last_name, bio, role_title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = COALESCE(EXCLUDED.first_name, profiles.first_name),
			last_name  = COALESCE(EXCLUDED.last_name, profiles.last_name),
			bio        = COALESCE(EXCLUDED.bio, profiles.bio),
			role_title = COALESCE(EXCLUDED.role_title, profiles.role_title),
			updated_at = NOW()
		RETURNING `+profileColumns,
		userID, update.FirstName, update.LastName, update.Bio, update.RoleTitle))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Profile{}, fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
		}
		return Profile{}, err
	}
	return p, nil
}

var _ ProfileStore = (*Repository)(nil)
