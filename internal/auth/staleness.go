package auth

import (
	"time"

	"github.com/flashy-edu/flashy/internal/rbac"
)

// Roles claims are a cache of the role store fixed at mint time. Refresh
// always re-derives the claim from the store, so a role change becomes visible
// to the guard no later than one access-token lifetime after it is made.

// StalenessWindow returns the maximum time an access token's roles claim may
// lag the role store.
func (t *TokenIssuer) StalenessWindow() time.Duration {
	return t.accessTTL
}

// ClaimDrift lists roles granted and revoked since claimed was minted.
func ClaimDrift(claimed, live rbac.RoleSet) (granted, revoked []string) {
	return live.Diff(claimed), claimed.Diff(live)
}

// IsStale reports whether claimed no longer matches live.
func IsStale(claimed, live rbac.RoleSet) bool {
	return !claimed.Equal(live)
}
