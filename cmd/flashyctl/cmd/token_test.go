package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func mint(t *testing.T, now time.Time) auth.TokenPair {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     testSecret,
		Issuer:     "flashy",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	pair, err := issuer.IssuePair(42, rbac.NewRoleSet("teacher", "student"))
	require.NoError(t, err)
	return pair
}

func TestInspectTokenVerified(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	pair := mint(t, now)

	view, err := inspectToken(pair.AccessToken, testSecret, "flashy", true, now)
	require.NoError(t, err)
	assert.Equal(t, "access", view.Kind)
	assert.Equal(t, "42", view.Subject)
	assert.Equal(t, []string{"student", "teacher"}, view.Roles)
	assert.True(t, view.RolesSet)
	assert.True(t, view.Verified)
	assert.False(t, view.Expired)

	view, err = inspectToken(pair.RefreshToken, testSecret, "flashy", true, now)
	require.NoError(t, err)
	assert.Equal(t, "refresh", view.Kind)
	assert.Equal(t, pair.RefreshID, view.ID)
}

func TestInspectTokenRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	pair := mint(t, now)

	_, err := inspectToken(pair.AccessToken, "ffffffffffffffffffffffffffffffff", "flashy", true, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidToken))
}

func TestInspectTokenUnverifiedReportsExpiry(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	pair := mint(t, issued)

	_, err := inspectToken(pair.AccessToken, testSecret, "flashy", true, time.Now())
	require.Error(t, err)

	view, err := inspectToken(pair.AccessToken, "", "", false, time.Now())
	require.NoError(t, err)
	assert.True(t, view.Expired)
	assert.False(t, view.Verified)
}

func TestInspectTokenRequiresSecret(t *testing.T) {
	pair := mint(t, time.Now())
	_, err := inspectToken(pair.AccessToken, "", "flashy", true, time.Now())
	assert.Error(t, err)
}

func TestInspectTokenMalformed(t *testing.T) {
	_, err := inspectToken("not-a-jwt", testSecret, "flashy", false, time.Now())
	assert.Error(t, err)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, tokenView{Kind: "access", Subject: "7", Roles: []string{"admin"}}))
	out := buf.String()
	assert.Contains(t, out, "type: access")
	assert.Contains(t, out, `sub: "7"`)
	assert.Contains(t, out, "- admin")
}

func TestPrintQueueStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printQueueStats(&buf, &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1}))
	assert.Contains(t, buf.String(), "default")
	assert.Contains(t, buf.String(), "PENDING")
}

func TestParseUserID(t *testing.T) {
	id, err := parseUserID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, raw := range []string{"0", "-3", "abc"} {
		_, err := parseUserID(raw)
		assert.Error(t, err, raw)
	}
	assert.Equal(t, "(none)", formatRoles(nil))
	assert.Equal(t, "admin, student", formatRoles([]string{"admin", "student"}))
}
