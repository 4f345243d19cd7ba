package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

// selfServiceRoles may be requested at registration on top of student.
var selfServiceRoles = map[string]struct{}{
	rbac.RoleTeacher: {},
	rbac.RoleExpert:  {},
}

// LoginNotifier is told about successful logins after tokens are minted.
type LoginNotifier interface {
	NotifyLogin(ctx context.Context, userID int64, at time.Time) error
}

// Observer counts issuance outcomes, e.g. *observability.Metrics.
type Observer interface {
	ObserveIssued(flow string)
	ObserveAuthFailure(flow string)
}

type nopObserver struct{}

func (nopObserver) ObserveIssued(string)      {}
func (nopObserver) ObserveAuthFailure(string) {}

// ServiceConfig collects the Service collaborators. Revocations and Notifier are optional.
type ServiceConfig struct {
	Repo         Repository
	Roles        rbac.RoleStore
	Issuer       *TokenIssuer
	Revocations  RevocationList
	Notifier     LoginNotifier
	Observer     Observer
	Logger       *slog.Logger
	PasswordCost int
	// Identity enables OAuthLogin; nil leaves external sign-in disabled.
	Identity IdentityProvider
}

// Service wraps authentication business rules.
type Service struct {
	repo         Repository
	roles        rbac.RoleStore
	issuer       *TokenIssuer
	revocations  RevocationList
	notifier     LoginNotifier
	identity     IdentityProvider
	observer     Observer
	logger       *slog.Logger
	passwordCost int
	// dummyHash is compared on unknown emails so both branches pay one bcrypt round.
	dummyHash []byte
	compare   func(hash, password []byte) error
}

// NewService constructs a new Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil || cfg.Roles == nil || cfg.Issuer == nil {
		return nil, fmt.Errorf("%w: auth service needs repository, role store and issuer", shared.ErrConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	cost := cfg.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("flashy-unknown-account"), cost)
	if err != nil {
		return nil, fmt.Errorf("%w: password cost %d: %v", shared.ErrConfiguration, cost, err)
	}
	return &Service{
		repo:         cfg.Repo,
		roles:        cfg.Roles,
		issuer:       cfg.Issuer,
		revocations:  cfg.Revocations,
		notifier:     cfg.Notifier,
		identity:     cfg.Identity,
		observer:     observer,
		logger:       logger,
		passwordCost: cost,
		dummyHash:    dummy,
		compare:      bcrypt.CompareHashAndPassword,
	}, nil
}

// Register creates an account holding student plus an optional self-service role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	roleNames := []string{rbac.RoleStudent}
	if requested := rbac.NormalizeRole(in.Role); requested != "" && requested != rbac.RoleStudent {
		if _, ok := selfServiceRoles[requested]; !ok {
			return nil, fmt.Errorf("%w: requested role is invalid", shared.ErrValidation)
		}
		roleNames = append(roleNames, requested)
	}
	for _, name := range roleNames {
		if _, err := s.roles.RoleByName(ctx, name); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("%w: role %q is not available", shared.ErrValidation, name)
			}
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	user, err := s.repo.CreateUser(ctx, NewUser{
		Email:        normalizeEmail(in.Email),
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}, roleNames)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.Any("roles", roleNames))
	return user, nil
}

// Login validates credentials and issues a token pair whose roles claim is the
// role store's view at this instant.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	pair, user, err := s.login(ctx, email, password)
	if err != nil {
		s.observer.ObserveAuthFailure("login")
		return TokenPair{}, nil, err
	}
	s.observer.ObserveIssued("login")
	return pair, user, nil
}

func (s *Service) login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("auth find user", slog.Any("error", err))
		}
		_ = s.compare(s.dummyHash, []byte(password))
		return TokenPair{}, nil, shared.ErrInvalidCredentials
	}
	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return TokenPair{}, nil, shared.ErrAccountDisabled
	}

	roles, err := s.roles.RolesOf(ctx, user.ID)
	if err != nil {
		s.logger.Error("auth roles of", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return TokenPair{}, nil, fmt.Errorf("%w: role store unavailable", shared.ErrAuthentication)
	}
	pair, err := s.issuer.IssuePair(user.ID, roles)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user.Roles = roles.Names()

	s.notifyLogin(ctx, user.ID, pair.IssuedAt)
	return pair, user, nil
}

func (s *Service) notifyLogin(ctx context.Context, userID int64, at time.Time) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyLogin(ctx, userID, at); err != nil {
		s.logger.Warn("auth notify login", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// oauthPasswordHash is not a bcrypt hash, so password login never matches it.
const oauthPasswordHash = "!oauth"

// OAuthLogin exchanges an identity-provider code for a token pair. Unknown
// emails get a student account with an unusable password.
func (s *Service) OAuthLogin(ctx context.Context, code string) (OAuthResult, error) {
	if s.identity == nil {
		return OAuthResult{}, fmt.Errorf("%w: external sign-in is not configured", shared.ErrValidation)
	}
	if strings.TrimSpace(code) == "" {
		return OAuthResult{}, fmt.Errorf("%w: authorization code is required", shared.ErrValidation)
	}
	res, err := s.oauthLogin(ctx, code)
	if err != nil {
		s.observer.ObserveAuthFailure("oauth")
		return OAuthResult{}, err
	}
	s.observer.ObserveIssued("oauth")
	return res, nil
}

func (s *Service) oauthLogin(ctx context.Context, code string) (OAuthResult, error) {
	identity, err := s.identity.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("auth oauth exchange", slog.String("provider", s.identity.Name()), slog.Any("error", err))
		if errors.Is(err, shared.ErrAuthentication) {
			return OAuthResult{}, err
		}
		return OAuthResult{}, fmt.Errorf("%w: identity provider rejected the code", shared.ErrAuthentication)
	}
	if !identity.EmailVerified {
		return OAuthResult{}, fmt.Errorf("%w: provider email is not verified", shared.ErrInvalidCredentials)
	}

	email := normalizeEmail(identity.Email)
	created := false
	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		user, err = s.createExternalUser(ctx, email, identity)
		if err != nil {
			return OAuthResult{}, err
		}
		created = true
	case err != nil:
		s.logger.Error("auth oauth find user", slog.Any("error", err))
		return OAuthResult{}, fmt.Errorf("%w: principal lookup failed", shared.ErrAuthentication)
	}
	if !user.IsActive {
		return OAuthResult{}, shared.ErrAccountDisabled
	}

	roles, err := s.roles.RolesOf(ctx, user.ID)
	if err != nil {
		s.logger.Error("auth roles of", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return OAuthResult{}, fmt.Errorf("%w: role store unavailable", shared.ErrAuthentication)
	}
	pair, err := s.issuer.IssuePair(user.ID, roles)
	if err != nil {
		return OAuthResult{}, err
	}
	user.Roles = roles.Names()
	s.notifyLogin(ctx, user.ID, pair.IssuedAt)
	return OAuthResult{Pair: pair, User: user, Created: created}, nil
}

// createExternalUser retries once with a suffixed username when the derived one is taken.
func (s *Service) createExternalUser(ctx context.Context, email string, identity ExternalIdentity) (*User, error) {
	username := identity.GivenName
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	nu := NewUser{
		Email:        email,
		Username:     username,
		PasswordHash: oauthPasswordHash,
		FirstName:    identity.GivenName,
		LastName:     identity.FamilyName,
	}
	roleNames := []string{rbac.RoleStudent}
	user, err := s.repo.CreateUser(ctx, nu, roleNames)
	if errors.Is(err, shared.ErrDuplicate) {
		if existing, findErr := s.repo.FindByEmail(ctx, email); findErr == nil {
			return existing, nil
		}
		nu.Username = username + "-" + uuid.NewString()[:8]
		user, err = s.repo.CreateUser(ctx, nu, roleNames)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.String("provider", s.identity.Name()))
	return user, nil
}

// Refresh exchanges a refresh token for a new access token. The roles claim is
// always re-derived from the role store; the refresh token's own claim is only
// compared for logging.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AccessGrant, error) {
	grant, err := s.refresh(ctx, refreshToken)
	if err != nil {
		s.observer.ObserveAuthFailure("refresh")
		return AccessGrant{}, err
	}
	s.observer.ObserveIssued("refresh")
	return grant, nil
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (AccessGrant, error) {
	claims, err := s.issuer.Parse(refreshToken, KindRefresh)
	if err != nil {
		return AccessGrant{}, err
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return AccessGrant{}, err
	}
	userID, err := claims.PrincipalID()
	if err != nil {
		return AccessGrant{}, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return AccessGrant{}, shared.ErrUnknownPrincipal
		}
		s.logger.Error("auth refresh find user", slog.Int64("user_id", userID), slog.Any("error", err))
		return AccessGrant{}, fmt.Errorf("%w: principal lookup failed", shared.ErrAuthentication)
	}
	if !user.IsActive {
		return AccessGrant{}, shared.ErrAccountDisabled
	}

	live, err := s.roles.RolesOf(ctx, userID)
	if err != nil {
		s.logger.Error("auth refresh roles of", slog.Int64("user_id", userID), slog.Any("error", err))
		return AccessGrant{}, fmt.Errorf("%w: role store unavailable", shared.ErrAuthentication)
	}
	if claimed, ok := claims.RoleSet(); ok && IsStale(claimed, live) {
		granted, revoked := ClaimDrift(claimed, live)
		s.logger.Info("auth refresh picked up role change",
			slog.Int64("user_id", userID),
			slog.Any("granted", granted),
			slog.Any("revoked", revoked))
	}

	token, _, err := s.issuer.IssueAccess(userID, live)
	if err != nil {
		return AccessGrant{}, err
	}
	return AccessGrant{
		AccessToken: token,
		TokenType:   bearerType,
		ExpiresIn:   int64(s.issuer.AccessTTL().Seconds()),
		Roles:       live.Names(),
	}, nil
}

// Logout revokes a refresh token. Access tokens already issued stay valid until expiry.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.issuer.Parse(refreshToken, KindRefresh)
	if err != nil {
		return err
	}
	if s.revocations == nil {
		return nil
	}
	userID, err := claims.PrincipalID()
	if err != nil {
		return err
	}
	if err := s.revocations.Revoke(ctx, claims.ID, userID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	s.logger.Info("refresh token revoked", slog.Int64("user_id", userID), slog.String("jti", claims.ID))
	return nil
}

// Me returns the caller's live account and whether its token claim has drifted.
func (s *Service) Me(ctx context.Context, principal *rbac.Principal) (*Me, error) {
	if principal == nil {
		return nil, shared.ErrAuthentication
	}
	user, err := s.repo.FindByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnknownPrincipal
		}
		return nil, err
	}
	live, err := s.roles.RolesOf(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = live.Names()
	return &Me{
		User:        user,
		TokenRoles:  principal.Roles.Names(),
		ClaimsStale: IsStale(principal.Roles, live),
	}, nil
}

// StalenessWindow exposes the issuer's bound for clients and operators.
func (s *Service) StalenessWindow() time.Duration {
	return s.issuer.StalenessWindow()
}

// Revocation lookups fail closed: without the list a logged-out token cannot be told apart.
func (s *Service) checkRevoked(ctx context.Context, tokenID string) error {
	if s.revocations == nil {
		return nil
	}
	revoked, err := s.revocations.IsRevoked(ctx, tokenID)
	if err != nil {
		s.logger.Error("auth revocation lookup", slog.Any("error", err))
		return fmt.Errorf("%w: revocation list unavailable", shared.ErrAuthentication)
	}
	if revoked {
		return shared.ErrTokenRevoked
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
