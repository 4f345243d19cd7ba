package rbac

import "strings"

// Decision is the outcome of evaluating a Policy.
type Decision int

const (
	// DecisionAllow permits the request.
	DecisionAllow Decision = iota
	// DecisionUnauthenticated means no usable identity: missing token or missing roles claim.
	DecisionUnauthenticated
	// DecisionForbidden means the identity is valid but its roles are insufficient.
	DecisionForbidden
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionUnauthenticated:
		return "unauthenticated"
	case DecisionForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Match selects the set test a Policy applies.
type Match int

const (
	// MatchAll requires required ⊆ claim.
	MatchAll Match = iota
	// MatchAny requires accepted ∩ claim ≠ ∅.
	MatchAny
)

// Policy is a declared role requirement attached to a route.
type Policy struct {
	match Match
	roles RoleSet
}

// RequireAll permits principals holding every listed role.
// With no roles it permits any principal carrying a roles claim.
func RequireAll(roles ...string) Policy {
	return Policy{match: MatchAll, roles: NewRoleSet(roles...)}
}

// RequireAny permits principals holding at least one listed role.
// With no roles it permits nobody.
func RequireAny(roles ...string) Policy {
	return Policy{match: MatchAny, roles: NewRoleSet(roles...)}
}

// Match returns the policy's set test.
func (p Policy) Match() Match { return p.match }

// Roles returns the policy roles sorted.
func (p Policy) Roles() []string { return p.roles.Names() }

// Evaluate decides using only the principal's embedded claim. It performs no I/O.
func (p Policy) Evaluate(principal *Principal) Decision {
	if principal == nil || !principal.HasRoleClaim {
		return DecisionUnauthenticated
	}
	var ok bool
	switch p.match {
	case MatchAll:
		ok = principal.Roles.ContainsAll(p.roles)
	case MatchAny:
		ok = principal.Roles.Intersects(p.roles)
	}
	if ok {
		return DecisionAllow
	}
	return DecisionForbidden
}

// String renders the policy as all(a,b) or any(a,b).
func (p Policy) String() string {
	prefix := "all"
	if p.match == MatchAny {
		prefix = "any"
	}
	return prefix + "(" + strings.Join(p.roles.Names(), ",") + ")"
}
