package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

const (
	bearerType     = "Bearer"
	minSecretBytes = 32
)

// TokenKind distinguishes access from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the JWT payload. Roles is a pointer so that a token minted without
// a roles claim can be told apart from one carrying an empty list.
type Claims struct {
	Kind  TokenKind `json:"type"`
	Roles *[]string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID parses the numeric subject.
func (c *Claims) PrincipalID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", shared.ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// RoleSet returns the embedded roles claim and whether it was present.
func (c *Claims) RoleSet() (rbac.RoleSet, bool) {
	if c.Roles == nil {
		return nil, false
	}
	return rbac.NewRoleSet(*c.Roles...), true
}

// IssuerConfig configures a TokenIssuer.
type IssuerConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// TokenIssuer mints and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer validates cfg. A weak secret or non-positive lifetime is a
// configuration error and must stop startup.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes", shared.ErrConfiguration, minSecretBytes)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", shared.ErrConfiguration)
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, fmt.Errorf("%w: refresh lifetime shorter than access lifetime", shared.ErrConfiguration)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

// AccessTTL returns the access-token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the refresh-token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// IssuePair mints an access and a refresh token carrying the same roles snapshot.
func (t *TokenIssuer) IssuePair(principalID int64, roles rbac.RoleSet) (TokenPair, error) {
	access, accessClaims, err := t.sign(KindAccess, principalID, roles, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshClaims, err := t.sign(KindRefresh, principalID, roles, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        bearerType,
		ExpiresIn:        int64(t.accessTTL.Seconds()),
		IssuedAt:         accessClaims.IssuedAt.Time,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshID:        refreshClaims.ID,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// IssueAccess mints a single access token.
func (t *TokenIssuer) IssueAccess(principalID int64, roles rbac.RoleSet) (string, time.Time, error) {
	token, claims, err := t.sign(KindAccess, principalID, roles, t.accessTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

func (t *TokenIssuer) sign(kind TokenKind, principalID int64, roles rbac.RoleSet, ttl time.Duration) (string, *Claims, error) {
	if principalID <= 0 {
		return "", nil, errors.New("auth: principal id must be positive")
	}
	now := t.now().UTC()
	names := roles.Names()
	claims := &Claims{
		Kind:  kind,
		Roles: &names,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(principalID, 10),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// Parse verifies signature, issuer, expiry and kind.
func (t *TokenIssuer) Parse(token string, kind TokenKind) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, shared.ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", shared.ErrInvalidToken, kind, claims.Kind)
	}
	return claims, nil
}

// VerifyAccess implements rbac.Verifier. A valid token without a roles claim
// yields a principal with HasRoleClaim=false rather than an error.
func (t *TokenIssuer) VerifyAccess(token string) (*rbac.Principal, error) {
	claims, err := t.Parse(token, KindAccess)
	if err != nil {
		return nil, err
	}
	id, err := claims.PrincipalID()
	if err != nil {
		return nil, err
	}
	roles, ok := claims.RoleSet()
	return &rbac.Principal{ID: id, TokenID: claims.ID, Roles: roles, HasRoleClaim: ok}, nil
}

var _ rbac.Verifier = (*TokenIssuer)(nil)
