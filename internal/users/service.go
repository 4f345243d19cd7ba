package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error)
	FindByID(ctx context.Context, id int64) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// WithAudit records account enable and disable events through rec.
func (s *Service) WithAudit(rec shared.AuditRecorder) *Service {
	s.audit = rec
	return s
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, filters ListFilters) ([]User, shared.Pagination, error) {
	bounds := shared.NewPagination(filters.Page, filters.PerPage, 0)
	filters.Page, filters.PerPage = bounds.Page, bounds.PerPage
	if filters.Role != "" {
		filters.Role = rbac.NormalizeRole(filters.Role)
	}
	users, total, err := s.repo.ListUsers(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, fmt.Errorf("%w: user id must be positive", shared.ErrValidation)
	}
	return s.repo.FindByID(ctx, id)
}

// SetActive enables or soft-disables an account. Administrators cannot disable themselves.
// A disabled account keeps any access token it holds until expiry but cannot log in or refresh.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) (User, error) {
	if id <= 0 {
		return User{}, fmt.Errorf("%w: user id must be positive", shared.ErrValidation)
	}
	if !active && actorID == id {
		return User{}, fmt.Errorf("%w: cannot disable your own account", shared.ErrValidation)
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return User{}, err
	}
	s.logger.Info("user active flag changed",
		slog.Int64("user_id", id),
		slog.Int64("actor_id", actorID),
		slog.Bool("active", active))
	if s.audit != nil {
		action := shared.AuditUserDisabled
		if active {
			action = shared.AuditUserEnabled
		}
		err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: strconv.FormatInt(id, 10)})
		if err != nil {
			s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
		}
	}
	return s.repo.FindByID(ctx, id)
}

// RecordLogin stamps the last login time of id.
func (s *Service) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	return s.repo.TouchLastLogin(ctx, id, at.UTC())
}
