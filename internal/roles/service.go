package roles

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,49}$`)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, filters RoleListFilters) ([]Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpsertRole(ctx context.Context, name, description string) (Role, error)
}

// CacheInvalidator drops memoized role lookups, e.g. *rbac.CachedStore.
type CacheInvalidator interface {
	Forget(name string)
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context, filters RoleListFilters) ([]Role, error) {
	return s.repo.ListRoles(ctx, filters)
}

// CreateRole adds a role to the catalogue.
func (s *Service) CreateRole(ctx context.Context, in CreateInput) (Role, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(in.Description))
	if err != nil {
		return Role{}, err
	}
	s.forget(name)
	s.logger.Info("role created", slog.String("role", name))
	return role, nil
}

// EnsureRoles creates or refreshes each entry. Existing assignments are untouched.
func (s *Service) EnsureRoles(ctx context.Context, in []CreateInput) ([]Role, error) {
	out := make([]Role, 0, len(in))
	for _, entry := range in {
		name, err := validateName(entry.Name)
		if err != nil {
			return nil, err
		}
		role, err := s.repo.UpsertRole(ctx, name, strings.TrimSpace(entry.Description))
		if err != nil {
			return nil, fmt.Errorf("ensure role %q: %w", name, err)
		}
		s.forget(name)
		out = append(out, role)
	}
	return out, nil
}

func (s *Service) forget(name string) {
	if s.cache != nil {
		s.cache.Forget(name)
	}
}

func validateName(raw string) (string, error) {
	name := rbac.NormalizeRole(raw)
	if !roleNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: role name must be 2-50 lower-case letters, digits or underscores", shared.ErrValidation)
	}
	return name, nil
}
