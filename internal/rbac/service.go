package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flashy-edu/flashy/internal/shared"
)

// Service orchestrates role assignment for administrators. Changes here do not
// touch tokens already issued; their claims stay as minted until expiry.
type Service struct {
	store  RoleStore
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs a Service backed by the provided store.
func NewService(store RoleStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// WithAudit records every grant and revocation through rec. Audit failures are
// logged and never undo the change.
func (s *Service) WithAudit(rec shared.AuditRecorder) *Service {
	s.audit = rec
	return s
}

// RolesOf returns the live role set of userID.
func (s *Service) RolesOf(ctx context.Context, userID int64) (RoleSet, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", shared.ErrValidation)
	}
	return s.store.RolesOf(ctx, userID)
}

// AssignRole grants roleName to userID.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleName string) error {
	name, err := validateAssignment(userID, roleName)
	if err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, userID, name); err != nil {
		return err
	}
	s.logger.Info("role assigned", slog.Int64("user_id", userID), slog.String("role", name))
	s.record(ctx, shared.AuditRoleAssigned, userID, name)
	return nil
}

// RemoveRole revokes roleName from userID.
func (s *Service) RemoveRole(ctx context.Context, userID int64, roleName string) error {
	name, err := validateAssignment(userID, roleName)
	if err != nil {
		return err
	}
	if err := s.store.RemoveRole(ctx, userID, name); err != nil {
		return err
	}
	s.logger.Info("role removed", slog.Int64("user_id", userID), slog.String("role", name))
	s.record(ctx, shared.AuditRoleRemoved, userID, name)
	return nil
}

func (s *Service) record(ctx context.Context, action string, userID int64, role string) {
	if s.audit == nil {
		return
	}
	var actor int64
	if p := PrincipalFromContext(ctx); p != nil {
		actor = p.ID
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"role": role},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateAssignment(userID int64, roleName string) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("%w: user id must be positive", shared.ErrValidation)
	}
	name := NormalizeRole(roleName)
	if name == "" {
		return "", fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	return name, nil
}
