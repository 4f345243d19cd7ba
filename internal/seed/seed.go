// Package seed loads the role catalogue and bootstrap accounts from YAML.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/roles"
	"github.com/flashy-edu/flashy/internal/shared"
)

// File is the on-disk seed format.
type File struct {
	Roles []RoleEntry `yaml:"roles"`
	Users []UserEntry `yaml:"users"`
}

// RoleEntry is one catalogue role.
type RoleEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// UserEntry is one bootstrap account. PasswordEnv names an environment
// variable holding the password; a non-empty value wins over Password.
type UserEntry struct {
	Email       string   `yaml:"email"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	PasswordEnv string   `yaml:"password_env"`
	Roles       []string `yaml:"roles"`
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(data)
}

// Parse decodes seed YAML. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("%w: seed file: %v", shared.ErrValidation, err)
	}
	return f, nil
}

// RoleEnsurer upserts catalogue roles, e.g. *roles.Service.
type RoleEnsurer interface {
	EnsureRoles(ctx context.Context, in []roles.CreateInput) ([]roles.Role, error)
}

// AccountStore finds and creates accounts, e.g. *auth.PGRepository.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	CreateUser(ctx context.Context, user auth.NewUser, roleNames []string) (*auth.User, error)
}

// RoleAssigner grants catalogue roles, e.g. an rbac.RoleStore.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID int64, roleName string) error
}

// Seeder applies a File. Applying the same file twice is a no-op.
type Seeder struct {
	Roles        RoleEnsurer
	Accounts     AccountStore
	Assignments  RoleAssigner
	PasswordCost int
	Logger       *slog.Logger
}

// Report summarises what Apply changed.
type Report struct {
	RolesEnsured  int
	UsersCreated  int
	UsersExisting int
}

// Apply ensures the roles, then creates missing users and tops up their roles.
func (s *Seeder) Apply(ctx context.Context, f File) (Report, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var report Report

	inputs := make([]roles.CreateInput, 0, len(f.Roles))
	for _, r := range f.Roles {
		inputs = append(inputs, roles.CreateInput{Name: r.Name, Description: r.Description})
	}
	ensured, err := s.Roles.EnsureRoles(ctx, inputs)
	if err != nil {
		return report, err
	}
	report.RolesEnsured = len(ensured)

	for _, u := range f.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email == "" {
			return report, fmt.Errorf("%w: seed user without email", shared.ErrValidation)
		}
		names := rbac.NewRoleSet(u.Roles...).Names()

		existing, err := s.Accounts.FindByEmail(ctx, email)
		switch {
		case err == nil:
			for _, name := range names {
				if err := s.Assignments.AssignRole(ctx, existing.ID, name); err != nil {
					return report, fmt.Errorf("seed %s: assign %s: %w", email, name, err)
				}
			}
			report.UsersExisting++
			continue
		case !errors.Is(err, shared.ErrNotFound):
			return report, err
		}

		password := u.Password
		if u.PasswordEnv != "" {
			if v := os.Getenv(u.PasswordEnv); v != "" {
				password = v
			}
		}
		if len(password) < 8 {
			return report, fmt.Errorf("%w: seed user %s needs a password of at least 8 characters", shared.ErrValidation, email)
		}
		cost := s.PasswordCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return report, err
		}
		username := u.Username
		if username == "" {
			username, _, _ = strings.Cut(email, "@")
		}
		created, err := s.Accounts.CreateUser(ctx, auth.NewUser{Email: email, Username: username, PasswordHash: string(hash)}, names)
		if err != nil {
			return report, fmt.Errorf("seed %s: %w", email, err)
		}
		logger.Info("seed user created", slog.Int64("user_id", created.ID), slog.Any("roles", names))
		report.UsersCreated++
	}
	return report, nil
}
