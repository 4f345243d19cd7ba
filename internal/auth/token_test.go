package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

func newIssuer(t *testing.T, now func() time.Time) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     testSecret,
		Issuer:     "flashy-test",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 720 * time.Hour,
		Now:        now,
	})
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuerRejectsBadConfig(t *testing.T) {
	cases := map[string]auth.IssuerConfig{
		"short secret":     {Secret: "short", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"empty secret":     {AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"zero access ttl":  {Secret: testSecret, RefreshTTL: time.Hour},
		"negative refresh": {Secret: testSecret, AccessTTL: time.Minute, RefreshTTL: -time.Hour},
		"refresh < access": {Secret: testSecret, AccessTTL: time.Hour, RefreshTTL: time.Minute},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.NewTokenIssuer(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrConfiguration))
		})
	}
}

func TestIssuePairEmbedsRoleSnapshot(t *testing.T) {
	issuer := newIssuer(t, nil)
	roles := rbac.NewRoleSet("Teacher", "student")

	pair, err := issuer.IssuePair(42, roles)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(1800), pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshID)

	access, err := issuer.Parse(pair.AccessToken, auth.KindAccess)
	require.NoError(t, err)
	refresh, err := issuer.Parse(pair.RefreshToken, auth.KindRefresh)
	require.NoError(t, err)

	for _, claims := range []*auth.Claims{access, refresh} {
		require.NotNil(t, claims.Roles)
		assert.Equal(t, []string{"student", "teacher"}, *claims.Roles)
		id, err := claims.PrincipalID()
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		assert.Equal(t, "flashy-test", claims.Issuer)
	}
	assert.Equal(t, pair.RefreshID, refresh.ID)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestIssuePairWithNoRolesStillCarriesClaim(t *testing.T) {
	issuer := newIssuer(t, nil)
	pair, err := issuer.IssuePair(7, nil)
	require.NoError(t, err)

	principal, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, principal.HasRoleClaim)
	assert.Equal(t, 0, principal.Roles.Len())
	assert.Equal(t, rbac.DecisionAllow, rbac.RequireAll().Evaluate(principal))
	assert.Equal(t, rbac.DecisionForbidden, rbac.RequireAny(rbac.RoleStudent).Evaluate(principal))
}

func TestIssuanceIsIdempotentForSameRoles(t *testing.T) {
	issuer := newIssuer(t, nil)
	roles := rbac.NewRoleSet(rbac.RoleAdmin, rbac.RoleMarketing)

	first, err := issuer.IssuePair(3, roles)
	require.NoError(t, err)
	second, err := issuer.IssuePair(3, roles)
	require.NoError(t, err)

	a, err := issuer.VerifyAccess(first.AccessToken)
	require.NoError(t, err)
	b, err := issuer.VerifyAccess(second.AccessToken)
	require.NoError(t, err)
	assert.True(t, a.Roles.Equal(b.Roles))
	assert.NotEqual(t, a.TokenID, b.TokenID)
}

func TestParseRejectsWrongKind(t *testing.T) {
	issuer := newIssuer(t, nil)
	pair, err := issuer.IssuePair(1, rbac.NewRoleSet(rbac.RoleStudent))
	require.NoError(t, err)

	_, err = issuer.Parse(pair.AccessToken, auth.KindRefresh)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
	assert.ErrorIs(t, err, shared.ErrAuthentication)

	_, err = issuer.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old := newIssuer(t, past)
	token, _, err := old.IssueAccess(1, rbac.NewRoleSet(rbac.RoleStudent))
	require.NoError(t, err)

	_, err = newIssuer(t, nil).VerifyAccess(token)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestParseRejectsForeignSignatureAndIssuer(t *testing.T) {
	issuer := newIssuer(t, nil)

	other, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     strings.Repeat("x", 40),
		Issuer:     "flashy-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	forged, _, err := other.IssueAccess(1, rbac.NewRoleSet(rbac.RoleAdmin))
	require.NoError(t, err)
	_, err = issuer.VerifyAccess(forged)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	elsewhere, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     testSecret,
		Issuer:     "someone-else",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	foreign, _, err := elsewhere.IssueAccess(1, rbac.NewRoleSet(rbac.RoleAdmin))
	require.NoError(t, err)
	_, err = issuer.VerifyAccess(foreign)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestParseRejectsUnsignedToken(t *testing.T) {
	issuer := newIssuer(t, nil)
	now := time.Now()
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":   "1",
		"type":  "access",
		"roles": []string{"admin"},
		"iss":   "flashy-test",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(unsigned)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestVerifyAccessWithoutRolesClaimIsUnauthenticated(t *testing.T) {
	issuer := newIssuer(t, nil)
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "9",
		"type": "access",
		"iss":  "flashy-test",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	principal, err := issuer.VerifyAccess(token)
	require.NoError(t, err)
	assert.False(t, principal.HasRoleClaim)
	assert.Equal(t, rbac.DecisionUnauthenticated, rbac.RequireAll().Evaluate(principal))
	assert.Equal(t, rbac.DecisionUnauthenticated, rbac.RequireAny(rbac.RoleStudent).Evaluate(principal))
}

func TestVerifyAccessRejectsBadSubject(t *testing.T) {
	issuer := newIssuer(t, nil)
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "not-a-number",
		"type":  "access",
		"roles": []string{},
		"iss":   "flashy-test",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(token)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestStalenessHelpers(t *testing.T) {
	issuer := newIssuer(t, nil)
	assert.Equal(t, 30*time.Minute, issuer.StalenessWindow())

	claimed := rbac.NewRoleSet(rbac.RoleStudent, rbac.RoleAdmin)
	live := rbac.NewRoleSet(rbac.RoleStudent, rbac.RoleTeacher)
	granted, revoked := auth.ClaimDrift(claimed, live)
	assert.Equal(t, []string{rbac.RoleTeacher}, granted)
	assert.Equal(t, []string{rbac.RoleAdmin}, revoked)
	assert.True(t, auth.IsStale(claimed, live))
	assert.False(t, auth.IsStale(live, rbac.NewRoleSet("TEACHER", "student")))
}
